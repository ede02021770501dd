// Package captcha detects CAPTCHA challenges on a page, gets them solved by
// an external service and writes the token back into the page.
package captcha

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/browser"
	"github.com/xkilldash9x/autoapply-cli/internal/retry"
)

var (
	//go:embed scripts/detect.js
	detectScript string
	//go:embed scripts/inject.js
	injectScript string
)

// ErrSolverRejected marks a request the solving service refused outright
// (bad key, zero balance, malformed site key). Retrying cannot help.
var ErrSolverRejected = errors.New("captcha solver rejected the request")

type detection struct {
	SiteKey string `json:"siteKey"`
	Markup  string `json:"markup"`
}

// Detect looks for a site-key-bearing element. It returns nil when the page
// carries no challenge.
func Detect(ctx context.Context, page schemas.Page) (*schemas.CaptchaChallenge, error) {
	var found *detection
	if err := page.Evaluate(ctx, browser.CallScript(detectScript), &found); err != nil {
		return nil, fmt.Errorf("captcha detection failed: %w", err)
	}
	if found == nil || strings.TrimSpace(found.SiteKey) == "" {
		return nil, nil
	}

	pageURL, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read page url: %w", err)
	}

	kind := schemas.CaptchaHCaptcha
	if strings.Contains(strings.ToLower(found.Markup), "recaptcha") {
		kind = schemas.CaptchaRecaptcha
	}
	return &schemas.CaptchaChallenge{Kind: kind, SiteKey: strings.TrimSpace(found.SiteKey), PageURL: pageURL}, nil
}

// responseFields are the hidden fields a widget reads its token from.
func responseFields(kind schemas.CaptchaKind) []string {
	if kind == schemas.CaptchaHCaptcha {
		return []string{"h-captcha-response", "g-recaptcha-response"}
	}
	return []string{"g-recaptcha-response"}
}

// Inject writes token into the response fields of the challenge's widget.
func Inject(ctx context.Context, page schemas.Page, challenge schemas.CaptchaChallenge, token string) error {
	var written int
	script := browser.CallScript(injectScript, token, responseFields(challenge.Kind))
	if err := page.Evaluate(ctx, script, &written); err != nil {
		return fmt.Errorf("token injection failed: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("%w: no %s response field on page", schemas.ErrCaptchaUnsolved, challenge.Kind)
	}
	return nil
}

// Resolver drives a CaptchaSolver under the step retry policy.
type Resolver struct {
	solver schemas.CaptchaSolver
	policy retry.Policy
	logger *zap.Logger
}

// NewResolver creates a Resolver. A nil solver makes every Resolve fail with
// ErrCaptchaUnsolved, which callers treat as a soft failure.
func NewResolver(solver schemas.CaptchaSolver, policy retry.Policy, logger *zap.Logger) *Resolver {
	return &Resolver{solver: solver, policy: policy, logger: logger.Named("captcha")}
}

// Resolve returns a solution token. Transient solver failures are retried;
// ErrCaptchaUnsolvable and ErrSolverRejected are not. Any failure other than
// the end of ctx is reported as ErrCaptchaUnsolved.
func (r *Resolver) Resolve(ctx context.Context, challenge schemas.CaptchaChallenge) (string, error) {
	if r.solver == nil {
		return "", fmt.Errorf("%w: no solver configured", schemas.ErrCaptchaUnsolved)
	}

	var token string
	op := func(ctx context.Context, attempt int) error {
		r.logger.Info("Solving captcha.",
			zap.String("kind", string(challenge.Kind)),
			zap.String("site_key", challenge.SiteKey),
			zap.Int("attempt", attempt))

		var err error
		switch challenge.Kind {
		case schemas.CaptchaRecaptcha:
			token, err = r.solver.SolveRecaptcha(ctx, challenge.SiteKey, challenge.PageURL)
		case schemas.CaptchaHCaptcha:
			token, err = r.solver.SolveHCaptcha(ctx, challenge.SiteKey, challenge.PageURL)
		default:
			return retry.Permanent(fmt.Errorf("%w: unknown captcha kind %q", ErrSolverRejected, challenge.Kind))
		}
		switch {
		case err == nil && strings.TrimSpace(token) == "":
			return errors.New("solver returned an empty token")
		case err == nil:
			return nil
		case errors.Is(err, schemas.ErrCaptchaUnsolvable), errors.Is(err, ErrSolverRejected):
			return retry.Permanent(err)
		default:
			return err
		}
	}
	notify := func(err error, attempt int, next time.Duration) {
		r.logger.Warn("Captcha solve failed, retrying.", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("next", next))
	}

	if err := r.policy.Do(ctx, op, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		r.logger.Warn("Captcha unsolved.", zap.Error(err), zap.String("code", string(schemas.CodeCaptchaUnsolved)))
		return "", fmt.Errorf("%w: %w", schemas.ErrCaptchaUnsolved, err)
	}
	r.logger.Info("Captcha solved.", zap.String("kind", string(challenge.Kind)))
	return token, nil
}
