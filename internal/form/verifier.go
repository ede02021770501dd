package form

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

// submitTextSelector scopes the text-based submit lookup.
const submitTextSelector = `button, input[type="submit"], input[type="button"], [role="button"], a`

// Verdict is the outcome of the submission step. A soft failure such as a
// missing submit control is a Verdict, not an error.
type Verdict struct {
	Result schemas.AttemptResult
	Reason schemas.ErrorCode
	// Phrase is the success phrase that confirmed the submission, if any.
	Phrase  string
	Missing []string
}

// Verifier submits the form and reads the confirmation.
type Verifier struct {
	cfg    config.FormConfig
	logger *zap.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg config.FormConfig, logger *zap.Logger) *Verifier {
	return &Verifier{cfg: cfg, logger: logger.Named("verifier")}
}

// Submit checks coverage, clicks the submit control and scans the settled
// page for a success phrase. The returned error is reserved for failures
// that happen before the click and are worth a fresh attempt.
func (v *Verifier) Submit(ctx context.Context, page schemas.Page, tracking Tracking) (Verdict, error) {
	missing := tracking.MissingRequired()
	if len(missing) > 0 {
		v.logger.Warn("Submitting with required fields unfilled.", zap.Strings("missing_required", missing))
	}

	selector, err := v.locateSubmit(ctx, page)
	if err != nil {
		return Verdict{Result: schemas.ResultFailed, Reason: schemas.CodeOf(err), Missing: missing}, err
	}
	if selector == "" {
		v.logger.Warn("No submit control found.", zap.String("code", string(schemas.CodeSubmitButtonNotFound)))
		return Verdict{Result: schemas.ResultFailed, Reason: schemas.CodeSubmitButtonNotFound, Missing: missing}, nil
	}

	if err := page.Click(ctx, selector); err != nil {
		return Verdict{Result: schemas.ResultFailed, Reason: schemas.CodeOf(err), Missing: missing}, fmt.Errorf("submit click failed: %w", err)
	}
	v.logger.Info("Form submitted.", zap.String("selector", selector))

	// From here on the click happened; nothing below is worth a resubmission.
	unconfirmed := Verdict{Result: schemas.ResultSubmittedUnconfirmed, Reason: schemas.CodeSubmissionUnconfirmed, Missing: missing}
	if err := sleep(ctx, v.cfg.SettleTime); err != nil {
		return unconfirmed, err
	}

	snapshot, err := page.HTML(ctx)
	if err != nil {
		v.logger.Warn("Could not read the page after submission.", zap.Error(err))
		return unconfirmed, nil
	}
	text, err := VisibleText(snapshot)
	if err != nil {
		v.logger.Warn("Could not parse the page after submission.", zap.Error(err))
		return unconfirmed, nil
	}

	if phrase, ok := findPhrase(text, v.cfg.SuccessPhrases); ok {
		v.logger.Info("Submission confirmed.", zap.String("phrase", phrase))
		return Verdict{Result: schemas.ResultSubmitted, Phrase: phrase, Missing: missing}, nil
	}

	v.logger.Warn("No confirmation text after submission; needs manual verification.",
		zap.String("code", string(schemas.CodeSubmissionUnconfirmed)),
		zap.Duration("settle_time", v.cfg.SettleTime))
	return unconfirmed, nil
}

func (v *Verifier) locateSubmit(ctx context.Context, page schemas.Page) (string, error) {
	for _, sel := range v.cfg.SubmitSelectors {
		ok, err := page.Exists(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			v.logger.Debug("Submit selector lookup failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if ok {
			return sel, nil
		}
	}
	for _, text := range v.cfg.SubmitTexts {
		sel, err := page.TagByText(ctx, submitTextSelector, text, false)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			v.logger.Debug("Submit text lookup failed.", zap.String("text", text), zap.Error(err))
			continue
		}
		if sel != "" {
			return sel, nil
		}
	}
	return "", nil
}

// findPhrase returns the first phrase, in list order, contained in text.
// Matching is case-sensitive.
func findPhrase(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}
