package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// textTagAttr marks elements located by visible text.
const textTagAttr = "data-autoapply-text"

var (
	//go:embed scripts/exists.js
	existsScript string
	//go:embed scripts/set_value.js
	setValueScript string
	//go:embed scripts/check.js
	checkScript string
	//go:embed scripts/label_text.js
	labelTextScript string
	//go:embed scripts/tag_by_text.js
	tagByTextScript string
)

// ErrElementNotFound is returned when a selector matches nothing.
var ErrElementNotFound = errors.New("element not found")

// Page is a chromedp-backed schemas.Page for one tab.
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	// browserCtx addresses the browser, not the tab; used to close the target.
	browserCtx     context.Context
	monitor        *idleMonitor
	defaultTimeout time.Duration
	logger         *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ schemas.Page = (*Page)(nil)

// run executes actions on the tab, bounded by ctx and the default timeout.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if p.defaultTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, p.defaultTimeout)
		defer cancelTimeout()
	}
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (p *Page) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		waitCtx, cancelTimeout = context.WithTimeout(waitCtx, timeout)
		defer cancelTimeout()
	}
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.run(ctx, chromedp.Evaluate(CallScript(existsScript, selector), &ok))
	return ok, err
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// SetValue replaces the value through the native setter and fires input
// and change events so framework-managed inputs see the update.
func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	return p.scripted(ctx, selector, CallScript(setValueScript, selector, value))
}

func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	return p.scripted(ctx, selector, CallScript(setValueScript, selector, value))
}

func (p *Page) Check(ctx context.Context, selector string) error {
	return p.scripted(ctx, selector, CallScript(checkScript, selector))
}

// scripted runs a script that reports false when selector matched nothing.
func (p *Page) scripted(ctx context.Context, selector, script string) error {
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

func (p *Page) SetFiles(ctx context.Context, selector string, paths []string) error {
	return p.run(ctx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery))
}

func (p *Page) LabelText(ctx context.Context, selector string) (string, error) {
	var label *string
	if err := p.run(ctx, chromedp.Evaluate(CallScript(labelTextScript, selector), &label)); err != nil {
		return "", err
	}
	if label == nil {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return *label, nil
}

func (p *Page) TagByText(ctx context.Context, selector, text string, exact bool) (string, error) {
	var tagged string
	err := p.run(ctx, chromedp.Evaluate(CallScript(tagByTextScript, selector, text, exact, textTagAttr), &tagged))
	return tagged, err
}

func (p *Page) Evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, res))
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var doc string
	if err := p.run(ctx, chromedp.OuterHTML("html", &doc, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return doc, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the tab. Later calls return the first result.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		defer p.cancel()
		if p.browserCtx == nil || p.browserCtx.Err() != nil {
			return
		}
		closeCtx, cancel := CombineContext(p.browserCtx, ctx)
		defer cancel()
		c := chromedp.FromContext(p.browserCtx)
		if c == nil || c.Browser == nil {
			return
		}
		if err := target.CloseTarget(p.targetID).Do(cdp.WithExecutor(closeCtx, c.Browser)); err != nil {
			p.logger.Debug("Could not close tab.", zap.Error(err))
			p.closeErr = fmt.Errorf("closing tab: %w", err)
		}
	})
	return p.closeErr
}
