// Package retry implements the bounded exponential retry policies used at
// two levels: tight retries around individual browser/captcha steps and a
// looser policy around whole application attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

// Policy is a bounded exponential backoff.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is the randomization factor applied to each interval (0 disables it).
	Jitter float64
}

// FromConfig converts a config block into a Policy.
func FromConfig(c config.RetryPolicyConfig) Policy {
	return Policy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		Multiplier:      c.Multiplier,
		Jitter:          backoff.DefaultRandomizationFactor,
	}
}

// Operation is one try. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Notify is called after a failed try that will be retried.
type Notify func(err error, attempt int, next time.Duration)

// Permanent wraps err so that Do stops retrying and returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	// The attempt count bounds the loop, not wall time.
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.attempts()-1))
}

// Do runs op until it succeeds, returns a Permanent error, the attempt budget
// is spent, or ctx is done. The last operation error is returned; when ctx
// ends the wait between tries, ctx.Err() is returned.
func (p Policy) Do(ctx context.Context, op Operation, notify Notify) error {
	attempt := 0
	operation := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx, attempt)
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) { notify(err, attempt, next) }
	}

	return backoff.RetryNotify(operation, backoff.WithContext(p.newBackOff(), ctx), onRetry)
}
