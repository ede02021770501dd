package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/observability"
	"github.com/xkilldash9x/autoapply-cli/internal/service"
)

func TestMain(m *testing.M) {
	// The first initialization wins, which keeps command runs from opening
	// the default log file.
	observability.InitializeLogger(config.LoggerConfig{Level: "error", Format: "console", ServiceName: "test"})
	code := m.Run()
	observability.Sync()
	os.Exit(code)
}

// baseConfig keeps command tests offline and fast.
const baseConfig = `
logger:
  log_file: ""
captcha:
  provider: none
mapping:
  semantic_enabled: false
form:
  trigger_wait: 0s
  settle_time: 0s
  combobox_wait: 0s
retry:
  attempt:
    max_attempts: 2
    initial_interval: 1ms
    max_interval: 2ms
  step:
    max_attempts: 1
    initial_interval: 1ms
    max_interval: 1ms
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	return writeTemp(t, "config.yaml", baseConfig+extra)
}

type testDeps struct {
	factory service.ComponentFactory
	solvers solverProvider
	stores  storeProvider
}

// runCommand executes a fresh tree with args and returns its stdout.
func runCommand(t *testing.T, deps testDeps, args ...string) (string, error) {
	t.Helper()
	if deps.solvers == nil {
		deps.solvers = func(config.CaptchaConfig, *zap.Logger) (schemas.CaptchaSolver, error) { return nil, nil }
	}
	if deps.stores == nil {
		deps.stores = func(context.Context, config.DatabaseConfig, *zap.Logger) (schemas.AttemptStore, func(), error) {
			return nil, nil, assert.AnError
		}
	}
	root := newRootCommand(commandDeps{factory: deps.factory, solvers: deps.solvers, stores: deps.stores})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_Version(t *testing.T) {
	out, err := runCommand(t, testDeps{}, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = runCommand(t, testDeps{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "autoapply "+Version+"\n", out)
}

func TestRoot_Help(t *testing.T) {
	out, err := runCommand(t, testDeps{})
	require.NoError(t, err)
	assert.Contains(t, out, "job applications")
	for _, sub := range []string{"apply", "captcha", "history", "profile", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRoot_ConfigErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := runCommand(t, testDeps{}, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "profile", "validate")
		assert.ErrorContains(t, err, "failed to initialize configuration")
	})

	t.Run("invalid values", func(t *testing.T) {
		cfgPath := writeTemp(t, "bad.yaml", "logger:\n  log_file: \"\"\nform:\n  scope_selector: \"  \"\n")
		_, err := runCommand(t, testDeps{}, "--config", cfgPath, "profile", "validate")
		assert.ErrorContains(t, err, "form.scope_selector is required")
	})
}

func TestRoot_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOAPPLY_DATABASE_URL", "postgres://u:p@localhost/autoapply")

	var got config.DatabaseConfig
	stores := func(_ context.Context, cfg config.DatabaseConfig, _ *zap.Logger) (schemas.AttemptStore, func(), error) {
		got = cfg
		return nil, nil, assert.AnError
	}
	_, err := runCommand(t, testDeps{stores: stores}, "--config", writeConfig(t, ""), "history")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "postgres://u:p@localhost/autoapply", got.URL)
}
