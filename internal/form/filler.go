package form

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/mapping"
)

// comboboxOptionSelector matches the options of an opened combobox panel.
const comboboxOptionSelector = `[role="option"]`

// Filler applies mapped values to controls, one strategy per FieldKind.
type Filler struct {
	cfg       config.FormConfig
	applicant config.ApplicantConfig
	logger    *zap.Logger
}

// NewFiller creates a Filler.
func NewFiller(cfg config.FormConfig, applicant config.ApplicantConfig, logger *zap.Logger) *Filler {
	return &Filler{cfg: cfg, applicant: applicant, logger: logger.Named("filler")}
}

// FillAll fills every field in order. fields and results are parallel
// slices as returned by the mapper. A failure on one field is recorded in
// its outcome and the pass moves on; only the end of ctx stops it early.
func (f *Filler) FillAll(ctx context.Context, page schemas.Page, fields []schemas.FieldDescriptor, results []schemas.MappingResult, tracking Tracking) ([]schemas.FillOutcome, Tracking, error) {
	if len(fields) != len(results) {
		return nil, tracking, fmt.Errorf("fill pass needs one mapping per field: %d fields, %d mappings", len(fields), len(results))
	}

	outcomes := make([]schemas.FillOutcome, 0, len(fields))
	for i, field := range fields {
		if err := ctx.Err(); err != nil {
			return outcomes, tracking, err
		}

		outcome := f.Fill(ctx, page, field, results[i])
		outcomes = append(outcomes, outcome)

		switch {
		case outcome.Succeeded:
			tracking = tracking.WithFilled(field.Identifier)
		case outcome.Attempted:
			f.logger.Warn("Field fill failed.",
				zap.String("field", field.Identifier),
				zap.String("kind", string(field.Kind)),
				zap.String("code", string(outcome.FailureReason)),
				zap.String("detail", outcome.Detail))
		default:
			f.logger.Debug("Field skipped.", zap.String("field", field.Identifier), zap.String("detail", outcome.Detail))
		}
	}

	if err := ctx.Err(); err != nil {
		return outcomes, tracking, err
	}
	return outcomes, tracking, nil
}

// Fill applies one mapping to one field.
func (f *Filler) Fill(ctx context.Context, page schemas.Page, field schemas.FieldDescriptor, m schemas.MappingResult) schemas.FillOutcome {
	outcome := schemas.FillOutcome{Identifier: field.Identifier, Kind: field.Kind}

	if field.Kind != schemas.KindFile && !m.Resolved() {
		outcome.Detail = "no value mapped"
		return outcome
	}

	switch field.Kind {
	case schemas.KindText, schemas.KindEmail, schemas.KindTel, schemas.KindTextarea:
		outcome.Attempted = true
		return finish(outcome, page.SetValue(ctx, field.Selector, m.Value))

	case schemas.KindFile:
		return f.fillFile(ctx, page, field, m, outcome)

	case schemas.KindSelect:
		return f.fillSelect(ctx, page, field, m, outcome)

	case schemas.KindCheckbox, schemas.KindRadio:
		return f.fillCheckable(ctx, page, field, m, outcome)

	case schemas.KindCombobox:
		return f.fillCombobox(ctx, page, field, m, outcome)

	default:
		outcome.Attempted = true
		outcome.FailureReason = schemas.CodeFieldFillFailed
		outcome.Detail = fmt.Sprintf("unsupported field kind %q", field.Kind)
		return outcome
	}
}

func (f *Filler) fillFile(ctx context.Context, page schemas.Page, field schemas.FieldDescriptor, m schemas.MappingResult, outcome schemas.FillOutcome) schemas.FillOutcome {
	if m.Group != mapping.GroupResume {
		outcome.Detail = "file field is not a resume upload"
		return outcome
	}
	outcome.Attempted = true

	candidate := f.applicant.ResumePath
	if m.Resolved() && m.Value != "" {
		candidate = m.Value
	}
	path, err := f.resolveResume(candidate)
	if err != nil {
		f.logger.Warn("Resume file missing; skipping upload.",
			zap.String("field", field.Identifier),
			zap.String("path", candidate),
			zap.String("code", string(schemas.CodeResumeFileMissing)))
		outcome.FailureReason = schemas.CodeResumeFileMissing
		outcome.Detail = err.Error()
		return outcome
	}
	return finish(outcome, page.SetFiles(ctx, field.Selector, []string{path}))
}

// resolveResume expands "~" and, for relative paths that do not exist as
// given, also looks inside the configured resume directory.
func (f *Filler) resolveResume(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: no resume path configured", schemas.ErrResumeFileMissing)
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrResumeFileMissing, err)
	}

	candidates := []string{expanded}
	if !filepath.IsAbs(expanded) && f.applicant.ResumeDir != "" {
		if dir, err := homedir.Expand(f.applicant.ResumeDir); err == nil {
			candidates = append(candidates, filepath.Join(dir, expanded))
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			abs, err := filepath.Abs(c)
			if err != nil {
				return c, nil
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", schemas.ErrResumeFileMissing, expanded)
}

func (f *Filler) fillSelect(ctx context.Context, page schemas.Page, field schemas.FieldDescriptor, m schemas.MappingResult, outcome schemas.FillOutcome) schemas.FillOutcome {
	outcome.Attempted = true
	value := m.Value
	if len(field.Options) > 0 {
		opt, ok := matchOption(field.Options, m.Value)
		if !ok {
			outcome.FailureReason = schemas.CodeFieldFillFailed
			outcome.Detail = fmt.Sprintf("no option matches %q", m.Value)
			return outcome
		}
		value = opt.Value
	}
	return finish(outcome, page.SelectOption(ctx, field.Selector, value))
}

// matchOption finds an option by value, then by label, ignoring case.
func matchOption(options []schemas.FieldOption, want string) (schemas.FieldOption, bool) {
	want = strings.TrimSpace(want)
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o.Value), want) {
			return o, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o.Label), want) {
			return o, true
		}
	}
	return schemas.FieldOption{}, false
}

func (f *Filler) fillCheckable(ctx context.Context, page schemas.Page, field schemas.FieldDescriptor, m schemas.MappingResult, outcome schemas.FillOutcome) schemas.FillOutcome {
	label, err := page.LabelText(ctx, field.Selector)
	if err != nil || strings.TrimSpace(label) == "" {
		if ctx.Err() != nil {
			outcome.Attempted = true
			return finish(outcome, ctx.Err())
		}
		label = field.Label
	}

	if !strings.Contains(strings.ToLower(label), strings.ToLower(strings.TrimSpace(m.Value))) {
		outcome.Detail = fmt.Sprintf("label %q does not mention %q", label, m.Value)
		return outcome
	}
	outcome.Attempted = true
	return finish(outcome, page.Check(ctx, field.Selector))
}

func (f *Filler) fillCombobox(ctx context.Context, page schemas.Page, field schemas.FieldDescriptor, m schemas.MappingResult, outcome schemas.FillOutcome) schemas.FillOutcome {
	outcome.Attempted = true
	if err := page.Click(ctx, field.Selector); err != nil {
		return finish(outcome, fmt.Errorf("open combobox: %w", err))
	}
	if err := sleep(ctx, f.cfg.ComboboxWait); err != nil {
		return finish(outcome, err)
	}

	option, err := page.TagByText(ctx, comboboxOptionSelector, strings.TrimSpace(m.Value), true)
	if err != nil {
		return finish(outcome, fmt.Errorf("find combobox option: %w", err))
	}
	if option == "" {
		outcome.FailureReason = schemas.CodeFieldFillFailed
		outcome.Detail = fmt.Sprintf("no option with text %q", m.Value)
		return outcome
	}
	return finish(outcome, page.Click(ctx, option))
}

// finish records err on an attempted outcome.
func finish(outcome schemas.FillOutcome, err error) schemas.FillOutcome {
	if err != nil {
		outcome.FailureReason = schemas.CodeFieldFillFailed
		if code := schemas.CodeOf(err); code == schemas.CodeTimeout {
			outcome.FailureReason = code
		}
		outcome.Detail = err.Error()
		return outcome
	}
	outcome.Succeeded = true
	return outcome
}
