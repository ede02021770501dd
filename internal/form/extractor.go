// Package form discovers, fills and submits application forms on a page.
package form

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/browser"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

//go:embed scripts/tag_fields.js
var tagFieldsScript string

// defaultTriggerSelector is used for text-only apply triggers.
const defaultTriggerSelector = `button, a, [role="button"]`

// Extractor finds the application form and describes its controls.
type Extractor struct {
	cfg    config.FormConfig
	logger *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg config.FormConfig, logger *zap.Logger) *Extractor {
	return &Extractor{cfg: cfg, logger: logger.Named("extractor")}
}

// ActivateApplyTrigger clicks the first configured apply control present on
// the page. Finding none is not an error: the form may already be visible.
func (e *Extractor) ActivateApplyTrigger(ctx context.Context, page schemas.Page) (bool, error) {
	for _, trigger := range e.cfg.ApplyTriggers {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		selector, err := e.locateTrigger(ctx, page, trigger)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			e.logger.Debug("Apply trigger lookup failed.", zap.String("selector", trigger.Selector), zap.String("text", trigger.Text), zap.Error(err))
			continue
		}
		if selector == "" {
			continue
		}

		if err := page.Click(ctx, selector); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			e.logger.Warn("Apply trigger found but click failed.", zap.String("selector", selector), zap.Error(err))
			continue
		}

		e.logger.Info("Apply trigger activated.", zap.String("selector", trigger.Selector), zap.String("text", trigger.Text))
		if err := sleep(ctx, e.cfg.TriggerWait); err != nil {
			return true, err
		}
		return true, nil
	}

	e.logger.Debug("No apply trigger present; assuming the form is already visible.")
	return false, nil
}

func (e *Extractor) locateTrigger(ctx context.Context, page schemas.Page, trigger config.TriggerConfig) (string, error) {
	if trigger.Text != "" {
		selector := trigger.Selector
		if selector == "" {
			selector = defaultTriggerSelector
		}
		return page.TagByText(ctx, selector, trigger.Text, false)
	}
	if trigger.Selector == "" {
		return "", nil
	}
	ok, err := page.Exists(ctx, trigger.Selector)
	if err != nil || !ok {
		return "", err
	}
	return trigger.Selector, nil
}

// Extract waits for the form scope, tags its controls and returns their
// descriptors in document order along with tracking updated with every
// required identifier. Re-running it re-tags the page from scratch.
func (e *Extractor) Extract(ctx context.Context, page schemas.Page, tracking Tracking) ([]schemas.FieldDescriptor, Tracking, error) {
	scope := e.cfg.ScopeSelector
	if err := page.WaitReady(ctx, scope, e.cfg.FormTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, tracking, ctx.Err()
		}
		return nil, tracking, fmt.Errorf("%w: no %q within %s: %w", schemas.ErrFormNotFound, scope, e.cfg.FormTimeout, err)
	}

	var tagged int
	if err := page.Evaluate(ctx, browser.CallScript(tagFieldsScript, scope, FieldAttr), &tagged); err != nil {
		return nil, tracking, fmt.Errorf("could not tag form controls: %w", err)
	}
	if tagged == 0 {
		return nil, tracking, fmt.Errorf("%w: %q contains no fillable controls", schemas.ErrFormNotFound, scope)
	}

	snapshot, err := page.HTML(ctx)
	if err != nil {
		return nil, tracking, fmt.Errorf("could not snapshot form: %w", err)
	}
	fields, err := ParseFields(snapshot)
	if err != nil {
		return nil, tracking, err
	}

	var required []string
	for _, f := range fields {
		if f.Required {
			required = append(required, f.Identifier)
		}
	}
	tracking = tracking.WithRequired(required...)

	e.logger.Info("Form fields extracted.",
		zap.Int("controls", tagged),
		zap.Int("fields", len(fields)),
		zap.Int("required", len(required)))
	return fields, tracking, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
