// Package browser drives a Chromium instance over the DevTools protocol.
// A Session owns one browser process, one isolated browser context inside
// it and the tabs opened there.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/retry"
)

const disposeTimeout = 10 * time.Second

// Session implements schemas.BrowserSession.
type Session struct {
	id      string
	cfg     config.BrowserConfig
	network config.NetworkConfig
	step    retry.Policy
	logger  *zap.Logger

	mu               sync.Mutex
	allocCtx         context.Context
	allocCancel      context.CancelFunc
	browserCtx       context.Context
	browserCancel    context.CancelFunc
	browserContextID cdp.BrowserContextID
	pages            []*Page
	pagesOpened      int
	open             bool
	closed           bool
}

var _ schemas.BrowserSession = (*Session)(nil)

// NewSession creates an unopened session. step governs page creation and
// navigation retries.
func NewSession(cfg config.BrowserConfig, network config.NetworkConfig, step retry.Policy, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		cfg:     cfg,
		network: network,
		step:    step,
		logger:  logger.Named("browser").With(zap.String("session_id", id)),
	}
}

// NewSessionFactory returns a constructor producing one fresh session per call.
func NewSessionFactory(cfg config.Interface, logger *zap.Logger) func() schemas.BrowserSession {
	return func() schemas.BrowserSession {
		return NewSession(cfg.Browser(), cfg.Network(), retry.FromConfig(cfg.Retry().Step), logger)
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Open launches the browser and creates the isolated context. Opening an
// open session is a no-op.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		s.logger.Debug("Session already open.")
		return nil
	}
	if s.closed {
		return fmt.Errorf("session %s was closed and cannot be reopened", s.id)
	}
	if !supportedEngine(s.cfg.Engine) {
		return fmt.Errorf("browser engine %q is not supported", s.cfg.Engine)
	}

	// The browser must outlive the caller's ctx; Close ends it.
	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, AllocatorOptions(s.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Debugf),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		<-started
		return ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	id, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(browserExecutor(ctx, browserCtx))
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to create isolated browser context: %w", err)
	}

	s.allocCtx, s.allocCancel = allocCtx, allocCancel
	s.browserCtx, s.browserCancel = browserCtx, browserCancel
	s.browserContextID = id
	s.open = true
	s.logger.Info("Browser session opened.",
		zap.Bool("headless", s.cfg.Headless),
		zap.String("browser_context_id", string(id)))
	return nil
}

// browserExecutor returns ctx addressed at the browser endpoint of browserCtx.
func browserExecutor(ctx, browserCtx context.Context) context.Context {
	c := chromedp.FromContext(browserCtx)
	if c == nil || c.Browser == nil {
		return ctx
	}
	return cdp.WithExecutor(ctx, c.Browser)
}

func (s *Session) state() (context.Context, cdp.BrowserContextID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.closed {
		return nil, "", schemas.ErrSessionNotStarted
	}
	return s.browserCtx, s.browserContextID, nil
}

// NewPage opens a tab inside the isolated context.
func (s *Session) NewPage(ctx context.Context) (schemas.Page, error) {
	browserCtx, contextID, err := s.state()
	if err != nil {
		return nil, err
	}

	var page *Page
	op := func(ctx context.Context, attempt int) error {
		p, err := s.createPage(ctx, browserCtx, contextID)
		if err != nil {
			return err
		}
		page = p
		return nil
	}
	notify := func(err error, attempt int, next time.Duration) {
		s.logger.Warn("Page creation failed, retrying.", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("next", next))
	}
	if err := s.step.Do(ctx, op, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", schemas.ErrPageCreationFailed, err)
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.pagesOpened++
	s.mu.Unlock()
	return page, nil
}

func (s *Session) createPage(ctx, browserCtx context.Context, contextID cdp.BrowserContextID) (*Page, error) {
	targetID, err := target.CreateTarget("about:blank").WithBrowserContextID(contextID).Do(browserExecutor(ctx, browserCtx))
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(targetID))
	page := &Page{
		ctx:            tabCtx,
		cancel:         tabCancel,
		targetID:       targetID,
		browserCtx:     browserCtx,
		monitor:        newIdleMonitor(s.logger),
		defaultTimeout: s.cfg.DefaultTimeout,
		logger:         s.logger.With(zap.String("target_id", string(targetID))),
	}

	// The first Run attaches to the target; it must use tabCtx itself.
	attached := make(chan error, 1)
	go func() {
		var actions []chromedp.Action
		if s.cfg.Viewport.Width > 0 && s.cfg.Viewport.Height > 0 {
			actions = append(actions, emulation.SetDeviceMetricsOverride(int64(s.cfg.Viewport.Width), int64(s.cfg.Viewport.Height), 1, false))
		}
		attached <- chromedp.Run(tabCtx, actions...)
	}()
	select {
	case err = <-attached:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		err = page.monitor.start(tabCtx)
	}
	if err != nil {
		_ = page.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("attach target: %w", err)
	}
	return page, nil
}

// Navigate loads url in page and waits for the body and for network
// quiescence. Quiescence that never comes is logged, not fatal.
func (s *Session) Navigate(ctx context.Context, page schemas.Page, url string) error {
	if _, _, err := s.state(); err != nil {
		return err
	}
	p, ok := page.(*Page)
	if !ok {
		return fmt.Errorf("%w: page %T does not belong to this session", schemas.ErrNavigationFailed, page)
	}

	op := func(ctx context.Context, attempt int) error {
		return s.navigateOnce(ctx, p, url)
	}
	notify := func(err error, attempt int, next time.Duration) {
		s.logger.Warn("Navigation failed, retrying.", zap.String("url", url), zap.Error(err), zap.Int("attempt", attempt), zap.Duration("next", next))
	}
	if err := s.step.Do(ctx, op, notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", schemas.ErrNavigationFailed, url, err)
	}
	return nil
}

func (s *Session) navigateOnce(ctx context.Context, p *Page, url string) error {
	navCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if s.network.NavigationTimeout > 0 {
		var cancelTimeout context.CancelFunc
		navCtx, cancelTimeout = context.WithTimeout(navCtx, s.network.NavigationTimeout)
		defer cancelTimeout()
	}

	start := time.Now()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return err
	}

	idleCtx := navCtx
	if s.network.IdleTimeout > 0 {
		var cancelIdle context.CancelFunc
		idleCtx, cancelIdle = context.WithTimeout(navCtx, s.network.IdleTimeout)
		defer cancelIdle()
	}
	if err := p.monitor.WaitIdle(idleCtx, s.network.IdleTime); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Network did not go idle; continuing.", zap.String("url", url), zap.Int("inflight_requests", p.monitor.Inflight()))
	}

	total, failed := p.monitor.counts()
	s.logger.Info("Navigated.",
		zap.String("url", url),
		zap.Duration("duration", time.Since(start)),
		zap.Int("requests", total),
		zap.Int("failed_requests", failed))
	return nil
}

// Close disposes the isolated context, shuts the browser down and then
// stops the driver process. Every failure is logged and returned joined.
// Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasOpen := s.open
	s.open = false
	pages := s.pages
	s.pages = nil
	s.mu.Unlock()

	if !wasOpen {
		return nil
	}

	var errs []error
	for _, p := range pages {
		p.cancel()
	}

	disposeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disposeTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(s.browserContextID).Do(browserExecutor(disposeCtx, s.browserCtx)); err != nil {
		s.logger.Error("Failed to dispose browser context.", zap.String("browser_context_id", string(s.browserContextID)), zap.Error(err))
		errs = append(errs, fmt.Errorf("dispose browser context: %w", err))
	}

	if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Failed to close browser.", zap.Error(err))
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	s.browserCancel()

	s.allocCancel()
	if err := context.Cause(s.allocCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Browser driver stopped abnormally.", zap.Error(err))
		errs = append(errs, fmt.Errorf("stop driver: %w", err))
	}

	s.logger.Info("Browser session closed.", zap.Int("pages_opened", s.PagesOpened()))
	return errors.Join(errs...)
}

// PagesOpened returns how many pages were created over the session.
func (s *Session) PagesOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesOpened
}
