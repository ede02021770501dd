package form

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/mapping"
	"github.com/xkilldash9x/autoapply-cli/internal/mocks"
)

func resolved(id, value string, p schemas.Provenance) schemas.MappingResult {
	return schemas.MappingResult{Identifier: id, Value: value, Provenance: p}
}

func unresolved(id string) schemas.MappingResult {
	return schemas.MappingResult{Identifier: id, Provenance: schemas.ProvenanceUnresolved}
}

func newTestFiller(t *testing.T, applicant config.ApplicantConfig) *Filler {
	t.Helper()
	return NewFiller(testFormConfig(), applicant, zaptest.NewLogger(t))
}

func TestFill_ScenarioA_TextField(t *testing.T) {
	page := mocks.NewFakePage("")
	f := newTestFiller(t, config.ApplicantConfig{})
	field := schemas.FieldDescriptor{Identifier: "email", Kind: schemas.KindEmail, Selector: "#email"}

	outcomes, tracking, err := f.FillAll(context.Background(), page,
		[]schemas.FieldDescriptor{field},
		[]schemas.MappingResult{resolved("email", "a@b.com", schemas.ProvenanceDirect)},
		Tracking{}.WithRequired("email"))
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, schemas.FillOutcome{Identifier: "email", Kind: schemas.KindEmail, Attempted: true, Succeeded: true}, outcomes[0])
	assert.Equal(t, []mocks.Action{{Method: "SetValue", Selector: "#email", Value: "a@b.com"}}, page.Calls("SetValue"))
	assert.True(t, tracking.IsFilled("email"))
	assert.Empty(t, tracking.MissingRequired())
}

func TestFillAll_ScenarioC_MissingResumeIsIsolated(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	page := mocks.NewFakePage("")
	f := NewFiller(testFormConfig(), config.ApplicantConfig{}, zap.New(core))

	fields := []schemas.FieldDescriptor{
		{Identifier: "resume", Kind: schemas.KindFile, Selector: "#resume", Required: true},
		{Identifier: "email", Kind: schemas.KindEmail, Selector: "#email"},
	}
	results := []schemas.MappingResult{
		{Identifier: "resume", Value: filepath.Join(t.TempDir(), "missing.pdf"), Provenance: schemas.ProvenanceHeuristic, Group: mapping.GroupResume},
		resolved("email", "a@b.com", schemas.ProvenanceDirect),
	}

	outcomes, tracking, err := f.FillAll(context.Background(), page, fields, results, Tracking{}.WithRequired("resume"))
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Attempted)
	assert.False(t, outcomes[0].Succeeded)
	assert.Equal(t, schemas.CodeResumeFileMissing, outcomes[0].FailureReason)
	assert.True(t, outcomes[1].Succeeded, "remaining fields are still processed")
	assert.Empty(t, page.Calls("SetFiles"))
	assert.Equal(t, []string{"resume"}, tracking.MissingRequired())

	require.Equal(t, 1, logs.FilterMessage("Resume file missing; skipping upload.").Len())
}

func TestFill_ResumeUpload(t *testing.T) {
	dir := t.TempDir()
	resume := filepath.Join(dir, "cv.pdf")
	require.NoError(t, os.WriteFile(resume, []byte("%PDF"), 0o600))
	field := schemas.FieldDescriptor{Identifier: "resume", Kind: schemas.KindFile, Selector: "#resume"}

	t.Run("relative path inside resume dir", func(t *testing.T) {
		page := mocks.NewFakePage("")
		f := newTestFiller(t, config.ApplicantConfig{ResumeDir: dir})

		out := f.Fill(context.Background(), page, field, schemas.MappingResult{Identifier: "resume", Value: "cv.pdf", Provenance: schemas.ProvenanceHeuristic, Group: mapping.GroupResume})

		assert.True(t, out.Succeeded)
		require.Len(t, page.Calls("SetFiles"), 1)
		assert.Equal(t, resume, page.Calls("SetFiles")[0].Value)
	})

	t.Run("config path when nothing was mapped", func(t *testing.T) {
		page := mocks.NewFakePage("")
		f := newTestFiller(t, config.ApplicantConfig{ResumePath: resume})

		out := f.Fill(context.Background(), page, field, schemas.MappingResult{Identifier: "resume", Provenance: schemas.ProvenanceUnresolved, Group: mapping.GroupResume})

		assert.True(t, out.Succeeded)
		assert.Equal(t, resume, page.Calls("SetFiles")[0].Value)
	})

	t.Run("no path anywhere", func(t *testing.T) {
		page := mocks.NewFakePage("")
		f := newTestFiller(t, config.ApplicantConfig{})

		out := f.Fill(context.Background(), page, field, schemas.MappingResult{Identifier: "resume", Provenance: schemas.ProvenanceUnresolved, Group: mapping.GroupResume})

		assert.True(t, out.Attempted)
		assert.Equal(t, schemas.CodeResumeFileMissing, out.FailureReason)
	})

	t.Run("directories do not count", func(t *testing.T) {
		page := mocks.NewFakePage("")
		f := newTestFiller(t, config.ApplicantConfig{})

		out := f.Fill(context.Background(), page, field, schemas.MappingResult{Identifier: "resume", Value: dir, Provenance: schemas.ProvenanceHeuristic, Group: mapping.GroupResume})
		assert.Equal(t, schemas.CodeResumeFileMissing, out.FailureReason)
	})

	t.Run("non resume file fields are left alone", func(t *testing.T) {
		page := mocks.NewFakePage("")
		f := newTestFiller(t, config.ApplicantConfig{ResumePath: resume})

		out := f.Fill(context.Background(), page,
			schemas.FieldDescriptor{Identifier: "cover_letter", Kind: schemas.KindFile, Selector: "#cl"},
			schemas.MappingResult{Identifier: "cover_letter", Value: resume, Provenance: schemas.ProvenanceHeuristic, Group: mapping.GroupCoverLetter})

		assert.False(t, out.Attempted)
		assert.Empty(t, page.Calls("SetFiles"))
	})
}

func TestFill_Select(t *testing.T) {
	field := schemas.FieldDescriptor{
		Identifier: "country", Kind: schemas.KindSelect, Selector: "#country",
		Options: []schemas.FieldOption{{Value: "us", Label: "United States"}, {Value: "ca", Label: "Canada"}},
	}

	tests := []struct {
		name      string
		value     string
		selected  string
		succeeded bool
	}{
		{"by value", "US", "us", true},
		{"by label", "canada", "ca", true},
		{"no such option", "Narnia", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := mocks.NewFakePage("")
			out := newTestFiller(t, config.ApplicantConfig{}).Fill(context.Background(), page, field, resolved("country", tt.value, schemas.ProvenanceDirect))

			assert.True(t, out.Attempted)
			assert.Equal(t, tt.succeeded, out.Succeeded)
			if tt.succeeded {
				assert.Equal(t, tt.selected, page.Calls("SelectOption")[0].Value)
			} else {
				assert.Equal(t, schemas.CodeFieldFillFailed, out.FailureReason)
				assert.Empty(t, page.Calls("SelectOption"))
			}
		})
	}
}

func TestFill_CheckboxAndRadio(t *testing.T) {
	field := schemas.FieldDescriptor{Identifier: "remote", Kind: schemas.KindRadio, Selector: "#remote-yes", Label: "Fallback label: Yes"}

	t.Run("label mentions the value", func(t *testing.T) {
		page := mocks.NewFakePage("")
		page.Labels["#remote-yes"] = "Yes, fully remote"
		out := newTestFiller(t, config.ApplicantConfig{}).Fill(context.Background(), page, field, resolved("remote", "yes", schemas.ProvenanceDirect))

		assert.True(t, out.Succeeded)
		assert.Len(t, page.Calls("Check"), 1)
	})

	t.Run("label does not mention the value", func(t *testing.T) {
		page := mocks.NewFakePage("")
		page.Labels["#remote-yes"] = "No, on-site only"
		out := newTestFiller(t, config.ApplicantConfig{}).Fill(context.Background(), page, field, resolved("remote", "yes", schemas.ProvenanceDirect))

		assert.False(t, out.Attempted)
		assert.Empty(t, page.Calls("Check"))
	})

	t.Run("falls back to the extracted label", func(t *testing.T) {
		page := mocks.NewFakePage("")
		out := newTestFiller(t, config.ApplicantConfig{}).Fill(context.Background(), page,
			schemas.FieldDescriptor{Identifier: "terms", Kind: schemas.KindCheckbox, Selector: "#terms", Label: "I agree to the Terms"},
			resolved("terms", "AGREE", schemas.ProvenanceSemantic))

		assert.True(t, out.Succeeded)
		assert.Equal(t, "#terms", page.Calls("Check")[0].Selector)
	})
}

func TestFill_Combobox(t *testing.T) {
	field := schemas.FieldDescriptor{Identifier: "location", Kind: schemas.KindCombobox, Selector: "#loc"}

	t.Run("option found", func(t *testing.T) {
		page := mocks.NewFakePage("")
		page.TextTargets["London"] = `[data-autoapply-text="3"]`
		out := newTestFiller(t, config.ApplicantConfig{}).Fill(context.Background(), page, field, resolved("location", "London", schemas.ProvenanceHeuristic))

		assert.True(t, out.Succeeded)
		clicks := page.Calls("Click")
		require.Len(t, clicks, 2)
		assert.Equal(t, "#loc", clicks[0].Selector)
		assert.Equal(t, `[data-autoapply-text="3"]`, clicks[1].Selector)
		assert.Equal(t, comboboxOptionSelector, page.Calls("TagByText")[0].Selector)
	})

	t.Run("option missing", func(t *testing.T) {
		page := mocks.NewFakePage("")
		out := newTestFiller(t, config.ApplicantConfig{}).Fill(context.Background(), page, field, resolved("location", "Atlantis", schemas.ProvenanceHeuristic))

		assert.True(t, out.Attempted)
		assert.False(t, out.Succeeded)
		assert.Equal(t, schemas.CodeFieldFillFailed, out.FailureReason)
		assert.Len(t, page.Calls("Click"), 1)
	})
}

func TestFill_UnresolvedIsNotAttempted(t *testing.T) {
	page := mocks.NewFakePage("")
	f := newTestFiller(t, config.ApplicantConfig{})

	for _, kind := range schemas.AllFieldKinds {
		if kind == schemas.KindFile {
			continue
		}
		out := f.Fill(context.Background(), page, schemas.FieldDescriptor{Identifier: "x", Kind: kind, Selector: "#x"}, unresolved("x"))
		assert.False(t, out.Attempted, kind)
		assert.False(t, out.Succeeded, kind)
	}
	assert.Empty(t, page.Actions)
}

func TestFillAll_FailureDoesNotStopThePass(t *testing.T) {
	page := mocks.NewFakePage("")
	page.Before = func(method, selector string) error {
		if method == "SetValue" && selector == "#first" {
			return errors.New("element detached")
		}
		return nil
	}
	f := newTestFiller(t, config.ApplicantConfig{})
	fields := []schemas.FieldDescriptor{
		{Identifier: "first", Kind: schemas.KindText, Selector: "#first"},
		{Identifier: "second", Kind: schemas.KindText, Selector: "#second"},
	}

	outcomes, tracking, err := f.FillAll(context.Background(), page, fields,
		[]schemas.MappingResult{resolved("first", "a", schemas.ProvenanceDirect), resolved("second", "b", schemas.ProvenanceDirect)},
		Tracking{}.WithRequired("first", "second"))
	require.NoError(t, err)

	assert.Equal(t, schemas.CodeFieldFillFailed, outcomes[0].FailureReason)
	assert.Contains(t, outcomes[0].Detail, "element detached")
	assert.True(t, outcomes[1].Succeeded)
	assert.Equal(t, []string{"first"}, tracking.MissingRequired())
}

func TestFillAll_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	page := mocks.NewFakePage("")
	page.Before = func(method, selector string) error {
		cancel()
		return nil
	}
	f := newTestFiller(t, config.ApplicantConfig{})
	fields := []schemas.FieldDescriptor{
		{Identifier: "a", Kind: schemas.KindText, Selector: "#a"},
		{Identifier: "b", Kind: schemas.KindText, Selector: "#b"},
	}

	outcomes, _, err := f.FillAll(ctx, page, fields,
		[]schemas.MappingResult{resolved("a", "1", schemas.ProvenanceDirect), resolved("b", "2", schemas.ProvenanceDirect)}, Tracking{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outcomes, 1)
}

func TestFillAll_RejectsMismatchedInput(t *testing.T) {
	f := newTestFiller(t, config.ApplicantConfig{})
	_, _, err := f.FillAll(context.Background(), mocks.NewFakePage(""),
		[]schemas.FieldDescriptor{{Identifier: "a"}}, nil, Tracking{})
	assert.Error(t, err)
}
