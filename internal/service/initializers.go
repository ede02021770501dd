package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/artifacts"
	"github.com/xkilldash9x/autoapply-cli/internal/captcha"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/llmclient"
	"github.com/xkilldash9x/autoapply-cli/internal/store"
)

// PoolOpener creates a connection pool for a database URL.
type PoolOpener func(ctx context.Context, url string) (*pgxpool.Pool, error)

// OpenPool parses url and applies the pool limits used for attempt history.
func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	return pool, nil
}

// InitializeStore connects to the history database and makes sure its
// tables exist. The caller owns the returned pool.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, open PoolOpener, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (hint: check AUTOAPPLY_DATABASE_URL)")
	}
	if open == nil {
		open = OpenPool
	}

	pool, err := open(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize attempt store: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Debug("Attempt store initialized.")
	return s, pool, nil
}

// InitializeLLMClient creates the LLM client described by the agent config.
func InitializeLLMClient(cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. Semantic mapping is unavailable.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializeCaptchaSolver returns the configured solving service, or nil
// when none is configured or the provider has no API key.
func InitializeCaptchaSolver(cfg config.CaptchaConfig, logger *zap.Logger) (*captcha.TwoCaptchaClient, error) {
	switch cfg.Provider {
	case "", config.CaptchaProviderNone:
		logger.Info("No CAPTCHA solver configured; challenges will be left unsolved.")
		return nil, nil
	case config.CaptchaProviderTwoCaptcha:
		if cfg.APIKey == "" {
			logger.Warn("CAPTCHA provider configured without an API key; challenges will be left unsolved.",
				zap.String("provider", cfg.Provider))
			return nil, nil
		}
		solver, err := captcha.NewTwoCaptchaClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CAPTCHA solver: %w", err)
		}
		return solver, nil
	default:
		return nil, fmt.Errorf("unsupported CAPTCHA provider: %s", cfg.Provider)
	}
}

// InitializeSinks builds the artifact sinks enabled in cfg, local first.
func InitializeSinks(ctx context.Context, cfg config.ArtifactsConfig, logger *zap.Logger) ([]schemas.ArtifactSink, error) {
	var sinks []schemas.ArtifactSink
	if cfg.Enabled {
		sinks = append(sinks, artifacts.NewLocalSink(cfg.Dir))
		logger.Debug("Local artifact sink enabled.", zap.String("dir", cfg.Dir))
	}
	if cfg.S3.Enabled {
		s3Sink, err := artifacts.NewS3SinkFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 artifact sink: %w", err)
		}
		sinks = append(sinks, s3Sink)
		logger.Debug("S3 artifact sink enabled.", zap.String("bucket", cfg.S3.Bucket))
	}
	return sinks, nil
}
