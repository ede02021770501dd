// Package orchestrator sequences one job application: browser session,
// apply trigger, CAPTCHA, extraction, mapping, filling and submission,
// wrapped in the attempt-level retry policy.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/artifacts"
	"github.com/xkilldash9x/autoapply-cli/internal/captcha"
	"github.com/xkilldash9x/autoapply-cli/internal/form"
	"github.com/xkilldash9x/autoapply-cli/internal/mapping"
	"github.com/xkilldash9x/autoapply-cli/internal/profile"
	"github.com/xkilldash9x/autoapply-cli/internal/retry"
)

const (
	defaultCloseTimeout = 30 * time.Second
	saveTimeout         = 10 * time.Second
	screenshotName      = "confirmation.png"
)

// SessionFactory hands out a fresh, unopened browser session per attempt.
type SessionFactory func() schemas.BrowserSession

// Dependencies are the components one application run is assembled from.
// Store and Sinks are optional.
type Dependencies struct {
	Sessions  SessionFactory
	Extractor *form.Extractor
	Mapper    *mapping.Mapper
	Filler    *form.Filler
	Verifier  *form.Verifier
	Captcha   *captcha.Resolver
	Attempts  retry.Policy

	Store schemas.AttemptStore
	Sinks []schemas.ArtifactSink
	// CloseTimeout bounds session teardown, which runs even after the
	// caller's context has ended. Zero means 30s.
	CloseTimeout time.Duration
}

// Orchestrator manages the lifecycle of application attempts.
type Orchestrator struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Orchestrator after checking the required dependencies.
func New(deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Sessions == nil ||
		deps.Extractor == nil ||
		deps.Mapper == nil ||
		deps.Filler == nil ||
		deps.Verifier == nil ||
		deps.Captcha == nil ||
		logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if deps.CloseTimeout <= 0 {
		deps.CloseTimeout = defaultCloseTimeout
	}
	return &Orchestrator{deps: deps, logger: logger.Named("orchestrator"), now: time.Now}, nil
}

// Apply runs attempts against jobURL until one completes, the attempt budget
// is spent or ctx ends. Completed includes the soft outcomes (unconfirmed
// submission, no submit control), which are returned without retrying.
// On failure the last attempt record is returned with the wrapped error.
func (o *Orchestrator) Apply(ctx context.Context, jobURL string, p *profile.Profile) (*schemas.ApplicationAttempt, error) {
	if p == nil {
		return nil, fmt.Errorf("an applicant profile is required")
	}
	if jobURL == "" {
		return nil, fmt.Errorf("a job URL is required")
	}

	o.logger.Info("Starting application.", zap.String("job_url", jobURL), zap.Int("max_attempts", o.deps.Attempts.MaxAttempts))

	var last *schemas.ApplicationAttempt
	err := o.deps.Attempts.Do(ctx, func(ctx context.Context, n int) error {
		attempt, err := o.runAttempt(ctx, jobURL, p, n)
		last = attempt
		o.save(ctx, attempt)
		return err
	}, func(err error, n int, next time.Duration) {
		o.logger.Warn("Application attempt failed, retrying.",
			zap.Int("attempt", n),
			zap.Duration("backoff", next),
			zap.String("code", string(schemas.CodeOf(err))),
			zap.Error(err))
	})

	if err != nil {
		attempts := 0
		if last != nil {
			attempts = last.Number
		}
		o.logger.Error("Application failed.", zap.String("job_url", jobURL), zap.Int("attempts", attempts), zap.Error(err))
		return last, fmt.Errorf("application to %s failed after %d attempt(s): %w", jobURL, attempts, err)
	}

	o.logger.Info("Application finished.",
		zap.String("job_url", jobURL),
		zap.String("result", string(last.Result)),
		zap.Int("attempts", last.Number))
	return last, nil
}

// runAttempt executes one attempt on a fresh session. The session is closed
// exactly once on every path, including panics, with a context that outlives
// the caller's so that teardown still runs after a timeout.
func (o *Orchestrator) runAttempt(ctx context.Context, jobURL string, p *profile.Profile, n int) (attempt *schemas.ApplicationAttempt, err error) {
	attempt = &schemas.ApplicationAttempt{
		ID:         uuid.NewString(),
		JobURL:     jobURL,
		ProfileRef: p.Path(),
		Number:     n,
		StartedAt:  o.now(),
		Stats:      schemas.NewSessionStats(),
	}
	logger := o.logger.With(zap.String("attempt_id", attempt.ID), zap.Int("attempt", n))

	session := o.deps.Sessions()
	if session == nil {
		attempt.FinishedAt = o.now()
		err = retry.Permanent(fmt.Errorf("session factory returned no session"))
		attempt.Fail(err)
		return attempt, err
	}

	var page schemas.Page
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Attempt panicked.", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("attempt %d panicked: %v", n, r)
		}

		closeErr := o.release(ctx, session, page, logger)
		attempt.Stats.PagesOpened = session.PagesOpened()
		attempt.FinishedAt = o.now()

		switch {
		case err != nil:
			// The pipeline error wins; a close failure was already logged.
		case closeErr != nil:
			// The pipeline completed, so a retry could submit twice.
			err = retry.Permanent(closeErr)
		}

		if err != nil {
			if attempt.Result.Succeeded() {
				attempt.Error = err.Error()
			} else {
				attempt.Fail(err)
			}
		}

		logger.Info("Application attempt finished.",
			zap.String("result", string(attempt.Result)),
			zap.String("reason", string(attempt.FailureReason)),
			zap.Int("pages_opened", attempt.Stats.PagesOpened),
			zap.Int("captcha_solved", attempt.Stats.CaptchaSolved),
			zap.Int("captcha_failed", attempt.Stats.CaptchaFailed),
			zap.Float64("captcha_success_rate", attempt.Stats.SuccessRate()),
			zap.Any("provenance", attempt.Stats.Provenance),
			zap.Duration("duration", attempt.FinishedAt.Sub(attempt.StartedAt)))
	}()

	err = o.pipeline(ctx, session, &page, jobURL, p, attempt, logger)
	return attempt, err
}

func (o *Orchestrator) pipeline(ctx context.Context, session schemas.BrowserSession, page *schemas.Page, jobURL string, p *profile.Profile, attempt *schemas.ApplicationAttempt, logger *zap.Logger) error {
	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("could not open browser session: %w", err)
	}

	pg, err := session.NewPage(ctx)
	if err != nil {
		return err
	}
	*page = pg

	if err := session.Navigate(ctx, pg, jobURL); err != nil {
		return err
	}

	if _, err := o.deps.Extractor.ActivateApplyTrigger(ctx, pg); err != nil {
		return err
	}

	if err := o.handleCaptcha(ctx, pg, &attempt.Stats, logger); err != nil {
		return err
	}

	var tracking form.Tracking
	fields, tracking, err := o.deps.Extractor.Extract(ctx, pg, tracking)
	if err != nil {
		return err
	}

	results, err := o.deps.Mapper.ResolveAll(ctx, p, fields)
	attempt.Stats.RecordMappings(results)
	if err != nil {
		return fmt.Errorf("field mapping aborted: %w", err)
	}

	outcomes, tracking, err := o.deps.Filler.FillAll(ctx, pg, fields, results, tracking)
	attempt.Outcomes = outcomes
	attempt.Required = tracking.Required()
	attempt.Filled = tracking.Filled()
	if err != nil {
		return fmt.Errorf("fill pass aborted: %w", err)
	}

	verdict, err := o.deps.Verifier.Submit(ctx, pg, tracking)
	attempt.Result = verdict.Result
	attempt.FailureReason = verdict.Reason
	attempt.MissingRequired = verdict.Missing
	if err != nil {
		if verdict.Result.Succeeded() {
			return retry.Permanent(err)
		}
		return err
	}

	if verdict.Result.Succeeded() {
		attempt.Artifacts = o.captureConfirmation(ctx, pg, attempt.ID, logger)
	}
	return nil
}

// handleCaptcha solves a challenge if one is present. Solver failures are
// counted and tolerated; only the end of ctx stops the attempt.
func (o *Orchestrator) handleCaptcha(ctx context.Context, page schemas.Page, stats *schemas.SessionStats, logger *zap.Logger) error {
	challenge, err := captcha.Detect(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("CAPTCHA detection failed; continuing without it.", zap.Error(err))
		return nil
	}
	if challenge == nil {
		return nil
	}

	logger.Info("CAPTCHA detected.", zap.String("kind", string(challenge.Kind)))
	token, err := o.deps.Captcha.Resolve(ctx, *challenge)
	if err == nil {
		err = captcha.Inject(ctx, page, *challenge, token)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.CaptchaFailed++
		logger.Warn("CAPTCHA unsolved; continuing to the form.",
			zap.String("code", string(schemas.CodeCaptchaUnsolved)),
			zap.Error(err))
		return nil
	}

	stats.CaptchaSolved++
	logger.Info("CAPTCHA solved.", zap.String("kind", string(challenge.Kind)))
	return nil
}

// captureConfirmation stores a screenshot of the page after submission.
// Failures are logged only.
func (o *Orchestrator) captureConfirmation(ctx context.Context, page schemas.Page, attemptID string, logger *zap.Logger) []string {
	if len(o.deps.Sinks) == 0 {
		return nil
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		logger.Warn("Could not capture confirmation screenshot.", zap.Error(err))
		return nil
	}
	locations, err := artifacts.Publish(ctx, o.deps.Sinks, attemptID+"/"+screenshotName, "image/png", png, logger)
	if err != nil {
		logger.Warn("Confirmation screenshot partially stored.", zap.Strings("locations", locations), zap.Error(err))
	}
	return locations
}

// release closes the page best-effort and then the session.
func (o *Orchestrator) release(ctx context.Context, session schemas.BrowserSession, page schemas.Page, logger *zap.Logger) error {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.CloseTimeout)
	defer cancel()

	if page != nil {
		if err := page.Close(closeCtx); err != nil {
			logger.Debug("Page close failed.", zap.Error(err))
		}
	}
	if err := session.Close(closeCtx); err != nil {
		logger.Warn("Browser session close failed.", zap.Error(err))
		return fmt.Errorf("could not close browser session: %w", err)
	}
	return nil
}

// save records the attempt. Persistence failures never fail the run.
func (o *Orchestrator) save(ctx context.Context, attempt *schemas.ApplicationAttempt) {
	if o.deps.Store == nil || attempt == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := o.deps.Store.SaveAttempt(saveCtx, attempt); err != nil {
		o.logger.Warn("Could not persist attempt.", zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
}
