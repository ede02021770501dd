package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// Action is one recorded call on a FakePage.
type Action struct {
	Method   string
	Selector string
	Value    string
}

// FakePage is an in-memory schemas.Page. Tests describe the page through its
// exported fields and read back the recorded Actions.
type FakePage struct {
	mu sync.Mutex

	PageURL string
	// Doc is what HTML returns. OnClick may swap it to simulate navigation.
	Doc string
	// Present lists selectors for which Exists and WaitReady succeed.
	Present map[string]bool
	// Labels maps a selector to the text LabelText returns.
	Labels map[string]string
	// TextTargets maps visible text to the selector TagByText returns.
	TextTargets map[string]string
	// EvalFunc produces the result of Evaluate. Nil results decode as null.
	EvalFunc func(script string) (interface{}, error)
	// Before runs at the start of every call; a non-nil error is returned
	// by the call. It may also panic to inject faults.
	Before func(method, selector string) error
	// OnClick runs after a successful Click.
	OnClick func(p *FakePage, selector string)
	PNG     []byte

	Actions []Action
	Closed  int
}

// NewFakePage returns an empty page at url.
func NewFakePage(url string) *FakePage {
	return &FakePage{
		PageURL:     url,
		Present:     map[string]bool{},
		Labels:      map[string]string{},
		TextTargets: map[string]string{},
	}
}

var _ schemas.Page = (*FakePage)(nil)

// ErrNoSuchElement is returned for selectors the fake does not know.
var ErrNoSuchElement = errors.New("fake page: no such element")

func (p *FakePage) record(ctx context.Context, method, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	before := p.Before
	p.Actions = append(p.Actions, Action{Method: method, Selector: selector, Value: value})
	p.mu.Unlock()
	if before != nil {
		return before(method, selector)
	}
	return nil
}

// Calls returns the recorded actions for method.
func (p *FakePage) Calls(method string) []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Action
	for _, a := range p.Actions {
		if a.Method == method {
			out = append(out, a)
		}
	}
	return out
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	if err := p.record(ctx, "URL", "", ""); err != nil {
		return "", err
	}
	return p.PageURL, nil
}

func (p *FakePage) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.record(ctx, "WaitReady", selector, timeout.String()); err != nil {
		return err
	}
	if !p.present(selector) {
		return fmt.Errorf("waiting for %s: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := p.record(ctx, "Exists", selector, ""); err != nil {
		return false, err
	}
	return p.present(selector), nil
}

func (p *FakePage) present(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Present[selector]
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	if err := p.record(ctx, "Click", selector, ""); err != nil {
		return err
	}
	if p.OnClick != nil {
		p.OnClick(p, selector)
	}
	return nil
}

func (p *FakePage) SetValue(ctx context.Context, selector, value string) error {
	return p.record(ctx, "SetValue", selector, value)
}

func (p *FakePage) SelectOption(ctx context.Context, selector, value string) error {
	return p.record(ctx, "SelectOption", selector, value)
}

func (p *FakePage) SetFiles(ctx context.Context, selector string, paths []string) error {
	value := ""
	if len(paths) > 0 {
		value = paths[0]
	}
	return p.record(ctx, "SetFiles", selector, value)
}

func (p *FakePage) Check(ctx context.Context, selector string) error {
	return p.record(ctx, "Check", selector, "")
}

func (p *FakePage) LabelText(ctx context.Context, selector string) (string, error) {
	if err := p.record(ctx, "LabelText", selector, ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	label, ok := p.Labels[selector]
	if !ok {
		return "", ErrNoSuchElement
	}
	return label, nil
}

func (p *FakePage) TagByText(ctx context.Context, selector, text string, exact bool) (string, error) {
	if err := p.record(ctx, "TagByText", selector, text); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TextTargets[text], nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := p.record(ctx, "Evaluate", "", script); err != nil {
		return err
	}
	var out interface{}
	if p.EvalFunc != nil {
		var err error
		if out, err = p.EvalFunc(script); err != nil {
			return err
		}
	}
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if err := p.record(ctx, "HTML", "", ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Doc, nil
}

// SetDoc replaces the document under the page lock.
func (p *FakePage) SetDoc(doc string) {
	p.mu.Lock()
	p.Doc = doc
	p.mu.Unlock()
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.record(ctx, "Screenshot", "", ""); err != nil {
		return nil, err
	}
	return p.PNG, nil
}

func (p *FakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	p.Closed++
	p.mu.Unlock()
	return nil
}

// FakeSession is an in-memory schemas.BrowserSession handing out one page.
type FakeSession struct {
	mu sync.Mutex

	Page        *FakePage
	OpenErr     error
	NewPageErr  error
	NavigateErr error
	CloseErr    error

	Opens       int
	Closes      int
	Navigations []string
	pages       int
	open        bool
}

var _ schemas.BrowserSession = (*FakeSession)(nil)

// NewFakeSession wraps page.
func NewFakeSession(page *FakePage) *FakeSession {
	return &FakeSession{Page: page}
}

func (s *FakeSession) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opens++
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.open = true
	return nil
}

func (s *FakeSession) NewPage(ctx context.Context) (schemas.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, schemas.ErrSessionNotStarted
	}
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	s.pages++
	return s.Page, nil
}

func (s *FakeSession) Navigate(ctx context.Context, page schemas.Page, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigations = append(s.Navigations, url)
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	if fp, ok := page.(*FakePage); ok {
		fp.mu.Lock()
		fp.PageURL = url
		fp.mu.Unlock()
	}
	return nil
}

func (s *FakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	s.open = false
	return s.CloseErr
}

func (s *FakeSession) PagesOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}
