package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultQuietPeriod = 500 * time.Millisecond

// idleMonitor listens to a tab's network events and tracks in-flight
// requests so navigation can wait for quiescence.
type idleMonitor struct {
	logger *zap.Logger

	mu       sync.RWMutex
	inflight map[network.RequestID]struct{}
	lastSeen time.Time
	failed   int
	total    int
}

func newIdleMonitor(logger *zap.Logger) *idleMonitor {
	return &idleMonitor{
		logger:   logger.Named("network"),
		inflight: make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
	}
}

// start attaches the listener to tabCtx and enables the network domain. The
// listener goes away with tabCtx.
func (m *idleMonitor) start(tabCtx context.Context) error {
	chromedp.ListenTarget(tabCtx, m.handle)
	return chromedp.Run(tabCtx, network.Enable())
}

func (m *idleMonitor) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.mu.Lock()
		m.inflight[e.RequestID] = struct{}{}
		m.total++
		m.lastSeen = time.Now()
		m.mu.Unlock()
	case *network.EventLoadingFinished:
		m.done(e.RequestID, false)
	case *network.EventLoadingFailed:
		m.done(e.RequestID, true)
	}
}

func (m *idleMonitor) done(id network.RequestID, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[id]; !ok {
		return
	}
	delete(m.inflight, id)
	if failed {
		m.failed++
	}
	m.lastSeen = time.Now()
}

// Inflight returns the number of requests still pending.
func (m *idleMonitor) Inflight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.inflight)
}

// WaitIdle polls until no request has been in flight for quiet.
func (m *idleMonitor) WaitIdle(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	ticker := time.NewTicker(quiet / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mu.RLock()
			inflight, last := len(m.inflight), m.lastSeen
			m.mu.RUnlock()

			if inflight == 0 && time.Since(last) >= quiet {
				return nil
			}
			m.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", inflight))
		}
	}
}

// counts returns the total and failed request counters.
func (m *idleMonitor) counts() (total, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, m.failed
}
