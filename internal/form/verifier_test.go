package form

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/mocks"
)

const submitSelector = `button[type="submit"]`

func pageWithSubmit(after string) *mocks.FakePage {
	page := mocks.NewFakePage("https://jobs.example.com/1")
	page.Present[submitSelector] = true
	page.Doc = `<html><body><form><button type="submit">Send</button></form></body></html>`
	page.OnClick = func(p *mocks.FakePage, selector string) {
		if selector == submitSelector {
			p.SetDoc(after)
		}
	}
	return page
}

func TestSubmit_ScenarioD_Confirmed(t *testing.T) {
	page := pageWithSubmit(`<html><body><h1>Application submitted</h1></body></html>`)
	v := NewVerifier(testFormConfig(), zaptest.NewLogger(t))

	verdict, err := v.Submit(context.Background(), page, Tracking{})
	require.NoError(t, err)

	assert.Equal(t, schemas.ResultSubmitted, verdict.Result)
	assert.Equal(t, "Application submitted", verdict.Phrase)
	assert.Equal(t, schemas.CodeNone, verdict.Reason)
	assert.Len(t, page.Calls("Click"), 1)
}

func TestSubmit_Confirmation(t *testing.T) {
	tests := []struct {
		name   string
		after  string
		result schemas.AttemptResult
		phrase string
	}{
		{"no phrase", `<html><body><p>Please wait</p></body></html>`, schemas.ResultSubmittedUnconfirmed, ""},
		{"case sensitive", `<html><body><p>thank you for applying</p></body></html>`, schemas.ResultSubmittedUnconfirmed, ""},
		{"phrase split across elements", `<html><body><p>Thank <span>you</span></p></body></html>`, schemas.ResultSubmitted, "Thank you"},
		{"script text is not visible", `<html><body><script>var s = "Success";</script></body></html>`, schemas.ResultSubmittedUnconfirmed, ""},
		{"first phrase in list order wins", `<html><body><p>Success! Thank you.</p></body></html>`, schemas.ResultSubmitted, "Thank you"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(testFormConfig(), zaptest.NewLogger(t))
			verdict, err := v.Submit(context.Background(), pageWithSubmit(tt.after), Tracking{})
			require.NoError(t, err)

			assert.Equal(t, tt.result, verdict.Result)
			assert.Equal(t, tt.phrase, verdict.Phrase)
			if tt.result == schemas.ResultSubmittedUnconfirmed {
				assert.Equal(t, schemas.CodeSubmissionUnconfirmed, verdict.Reason)
			}
		})
	}
}

func TestSubmit_NoSubmitControl(t *testing.T) {
	page := mocks.NewFakePage("https://jobs.example.com/1")
	v := NewVerifier(testFormConfig(), zaptest.NewLogger(t))

	verdict, err := v.Submit(context.Background(), page, Tracking{})
	require.NoError(t, err, "a missing submit control is a result, not an error")

	assert.Equal(t, schemas.ResultFailed, verdict.Result)
	assert.Equal(t, schemas.CodeSubmitButtonNotFound, verdict.Reason)
	assert.Empty(t, page.Calls("Click"))
}

func TestSubmit_TextFallback(t *testing.T) {
	page := mocks.NewFakePage("https://jobs.example.com/1")
	page.TextTargets["Submit"] = `[data-autoapply-text="4"]`
	page.OnClick = func(p *mocks.FakePage, selector string) {
		p.SetDoc(`<html><body>Confirmation #123</body></html>`)
	}
	v := NewVerifier(testFormConfig(), zaptest.NewLogger(t))

	verdict, err := v.Submit(context.Background(), page, Tracking{})
	require.NoError(t, err)

	assert.Equal(t, schemas.ResultSubmitted, verdict.Result)
	assert.Equal(t, `[data-autoapply-text="4"]`, page.Calls("Click")[0].Selector)
	assert.Equal(t, submitTextSelector, page.Calls("TagByText")[0].Selector)
}

func TestSubmit_WarnsAboutMissingRequired(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	v := NewVerifier(testFormConfig(), zap.New(core))
	tracking := Tracking{}.WithRequired("email", "resume").WithFilled("email")

	verdict, err := v.Submit(context.Background(), pageWithSubmit(`<p>Thank you</p>`), tracking)
	require.NoError(t, err)

	assert.Equal(t, schemas.ResultSubmitted, verdict.Result, "submission still goes ahead")
	assert.Equal(t, []string{"resume"}, verdict.Missing)

	entries := logs.FilterMessage("Submitting with required fields unfilled.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"resume"}, entries[0].ContextMap()["missing_required"])
}

func TestSubmit_ClickFailure(t *testing.T) {
	page := pageWithSubmit(`<p>Thank you</p>`)
	page.Before = func(method, selector string) error {
		if method == "Click" {
			return errors.New("node detached")
		}
		return nil
	}
	v := NewVerifier(testFormConfig(), zaptest.NewLogger(t))

	verdict, err := v.Submit(context.Background(), page, Tracking{})
	require.Error(t, err)
	assert.Equal(t, schemas.ResultFailed, verdict.Result)
}

func TestSubmit_UnreadablePageAfterClick(t *testing.T) {
	page := pageWithSubmit("")
	page.Before = func(method, selector string) error {
		if method == "HTML" {
			return errors.New("target closed")
		}
		return nil
	}
	v := NewVerifier(testFormConfig(), zaptest.NewLogger(t))

	verdict, err := v.Submit(context.Background(), page, Tracking{})
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultSubmittedUnconfirmed, verdict.Result)
}
