package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/mocks"
	"github.com/xkilldash9x/autoapply-cli/internal/orchestrator"
)

func testFactory(open PoolOpener) *concreteFactory {
	return &concreteFactory{
		openPool: open,
		sessions: func(config.Interface, *zap.Logger) orchestrator.SessionFactory {
			return func() schemas.BrowserSession {
				return mocks.NewFakeSession(mocks.NewFakePage(""))
			}
		},
	}
}

func minimalConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.CaptchaCfg.Provider = config.CaptchaProviderNone
	cfg.MappingCfg.SemanticEnabled = false
	cfg.DatabaseCfg.URL = ""
	return cfg
}

func TestCreate_Minimal(t *testing.T) {
	c, err := testFactory(nil).Create(context.Background(), minimalConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, c.Orchestrator)
	assert.Nil(t, c.Store)
	assert.Nil(t, c.Solver)
	assert.Nil(t, c.LLM)
	assert.Nil(t, c.DBPool)
	assert.Empty(t, c.Sinks)
	assert.NoError(t, c.Shutdown())
}

func TestCreate_OptionalFeatures(t *testing.T) {
	cfg := minimalConfig()
	cfg.CaptchaCfg = config.CaptchaConfig{Provider: config.CaptchaProviderTwoCaptcha, APIKey: "captcha-key"}
	cfg.MappingCfg.SemanticEnabled = true
	cfg.AgentCfg.LLM = config.LLMModelConfig{Provider: config.ProviderGemini, APIKey: "gemini-key", Model: "gemini-2.5-flash"}
	cfg.ArtifactsCfg = config.ArtifactsConfig{Enabled: true, Dir: t.TempDir()}

	c, err := testFactory(nil).Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, c.Solver)
	assert.NotNil(t, c.LLM)
	assert.Len(t, c.Sinks, 1)
	assert.NoError(t, c.Shutdown())
}

func TestCreate_SemanticWithoutKeyDegrades(t *testing.T) {
	cfg := minimalConfig()
	cfg.MappingCfg.SemanticEnabled = true
	cfg.AgentCfg.LLM.APIKey = ""

	c, err := testFactory(nil).Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, c.LLM)
}

func TestCreate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		open    PoolOpener
		wantErr string
	}{
		{
			name:    "database unreachable",
			mutate:  func(c *config.Config) { c.DatabaseCfg.URL = "postgres://localhost:1/autoapply" },
			open:    func(context.Context, string) (*pgxpool.Pool, error) { return nil, errors.New("dial tcp: connection refused") },
			wantErr: "connection refused",
		},
		{
			name: "unsupported LLM provider",
			mutate: func(c *config.Config) {
				c.MappingCfg.SemanticEnabled = true
				c.AgentCfg.LLM = config.LLMModelConfig{Provider: "mystery", APIKey: "k"}
			},
			wantErr: "failed to initialize LLM client",
		},
		{
			name:    "unsupported captcha provider",
			mutate:  func(c *config.Config) { c.CaptchaCfg.Provider = "anticaptcha" },
			wantErr: "unsupported CAPTCHA provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.mutate(cfg)
			c, err := testFactory(tt.open).Create(context.Background(), cfg, zaptest.NewLogger(t))
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Nil(t, c)
		})
	}
}

func TestNewComponentFactory(t *testing.T) {
	f, ok := NewComponentFactory().(*concreteFactory)
	require.True(t, ok)
	assert.NotNil(t, f.openPool)
	assert.NotNil(t, f.sessions(config.NewDefaultConfig(), zap.NewNop()))
}
