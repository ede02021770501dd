package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chromePath finds a local Chrome or Chromium binary. CHROME_PATH wins.
func chromePath() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// newTestSession returns a headless session, skipping the test when no
// browser binary is installed. The session is closed on cleanup.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	path := chromePath()
	if path == "" {
		t.Skip("no Chrome or Chromium binary found; set CHROME_PATH to run browser tests")
	}

	cfg := config.NewDefaultConfig()
	browserCfg := cfg.Browser()
	browserCfg.ExecPath = path
	browserCfg.Headless = true
	browserCfg.DefaultTimeout = 10 * time.Second
	networkCfg := cfg.Network()
	networkCfg.IdleTime = 100 * time.Millisecond
	networkCfg.IdleTimeout = 2 * time.Second

	s := NewSession(browserCfg, networkCfg, retry.Policy{MaxAttempts: 2, InitialInterval: 10 * time.Millisecond}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// createStaticTestServer returns a server that serves the given HTML content.
func createStaticTestServer(t *testing.T, htmlContent string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, htmlContent)
	}))
	t.Cleanup(server.Close)
	return server
}
