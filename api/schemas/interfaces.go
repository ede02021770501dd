package schemas

import (
	"context"
	"time"
)

// -- Browser Interfaces --

// Page is the DOM capability the form engine needs from one browser tab.
// Selectors are CSS selectors; every call is bounded by ctx.
type Page interface {
	// URL returns the current document location.
	URL(ctx context.Context) (string, error)
	// WaitReady blocks until selector matches at least one element or timeout elapses.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error
	// Exists reports whether selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// SetValue replaces the control's content with value.
	SetValue(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	SetFiles(ctx context.Context, selector string, paths []string) error
	// Check ticks a checkbox or radio if it is not ticked already.
	Check(ctx context.Context, selector string) error
	// LabelText reads the label associated with the control via a read-only script.
	LabelText(ctx context.Context, selector string) (string, error)
	// TagByText finds the first element matching selector whose visible text
	// equals (exact) or contains (case-insensitive) text, tags it, and returns a
	// selector for it. It returns "" when nothing matches.
	TagByText(ctx context.Context, selector, text string, exact bool) (string, error)
	// Evaluate runs script and decodes its JSON result into res (which may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// BrowserSession owns one browser instance, one isolated context, and its pages.
type BrowserSession interface {
	// Open starts the browser. Calling it on an open session is a no-op.
	Open(ctx context.Context) error
	NewPage(ctx context.Context) (Page, error)
	Navigate(ctx context.Context, page Page, url string) error
	// Close releases the isolated context, the browser and the driver, in that order.
	Close(ctx context.Context) error
	PagesOpened() int
}

// -- Captcha --

// CaptchaKind identifies the challenge vendor.
type CaptchaKind string

const (
	CaptchaRecaptcha CaptchaKind = "recaptcha"
	CaptchaHCaptcha  CaptchaKind = "hcaptcha"
)

// CaptchaChallenge describes a challenge found on a page.
type CaptchaChallenge struct {
	Kind    CaptchaKind `json:"kind"`
	SiteKey string      `json:"site_key"`
	PageURL string      `json:"page_url"`
}

// CaptchaSolver is the external solving service.
type CaptchaSolver interface {
	SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
	SolveHCaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
	// Balance returns the remaining account balance. Not used on the apply path.
	Balance(ctx context.Context) (float64, error)
}

// -- Semantic Mapping --

// SemanticMapping is the batched answer of a SemanticMapper.
type SemanticMapping struct {
	MappedFields map[string]string `json:"mapped_fields"`
	Explanations map[string]string `json:"explanations"`
}

// SemanticMapper resolves fields that the local tiers could not, in one call.
// Implementations may return partial or empty mappings.
type SemanticMapper interface {
	MapFields(ctx context.Context, profile map[string]interface{}, fields []FieldDescriptor) (*SemanticMapping, error)
}

// -- LLM Client Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions controls the text generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest is one complete request to an LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the specifics of the underlying model provider.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}

// -- Persistence & Artifacts --

// AttemptStore persists application attempts for later review.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, attempt *ApplicationAttempt) error
	ListAttempts(ctx context.Context, limit int) ([]ApplicationAttempt, error)
}

// ArtifactSink stores binary artifacts (screenshots) and returns where they went.
type ArtifactSink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}
