package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/browser"
	"github.com/xkilldash9x/autoapply-cli/internal/captcha"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/form"
	"github.com/xkilldash9x/autoapply-cli/internal/mapping"
	"github.com/xkilldash9x/autoapply-cli/internal/orchestrator"
	"github.com/xkilldash9x/autoapply-cli/internal/retry"
)

// ComponentFactory creates the set of components needed for an application run.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	openPool PoolOpener
	sessions func(config.Interface, *zap.Logger) orchestrator.SessionFactory
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		openPool: OpenPool,
		sessions: func(cfg config.Interface, logger *zap.Logger) orchestrator.SessionFactory {
			return browser.NewSessionFactory(cfg, logger)
		},
	}
}

// Create wires every component from cfg. Optional features (history store,
// captcha solver, semantic mapping, artifact sinks) are only built when
// configured. Anything created before a failure is shut down again.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (components *Components, err error) {
	components = &Components{}
	defer func() {
		if err != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(err))
			_ = components.Shutdown()
			components = nil
		}
	}()

	// 1. Attempt history
	if cfg.Database().URL != "" {
		s, pool, err := InitializeStore(ctx, cfg.Database(), f.openPool, logger)
		if err != nil {
			return nil, err
		}
		components.Store, components.DBPool = s, pool
	} else {
		logger.Debug("No database configured; attempts will not be recorded.")
	}

	// 2. Semantic mapping
	var semantic schemas.SemanticMapper
	switch {
	case !cfg.Mapping().SemanticEnabled:
		logger.Debug("Semantic mapping disabled.")
	case cfg.Agent().LLM.APIKey == "":
		logger.Warn("Semantic mapping enabled but no LLM API key is set; unresolved fields stay empty.")
	default:
		llm, err := InitializeLLMClient(cfg.Agent(), logger)
		if err != nil {
			return nil, err
		}
		components.LLM = llm
		semantic = mapping.NewLLMSemanticMapper(llm, float64(cfg.Agent().LLM.Temperature), logger)
		logger.Debug("Semantic mapping enabled.", zap.String("provider", string(cfg.Agent().LLM.Provider)))
	}

	// 3. CAPTCHA solver. The interface stays nil when no solver exists.
	solver, err := InitializeCaptchaSolver(cfg.Captcha(), logger)
	if err != nil {
		return nil, err
	}
	if solver != nil {
		components.Solver = solver
	}

	// 4. Artifact sinks
	sinks, err := InitializeSinks(ctx, cfg.Artifacts(), logger)
	if err != nil {
		return nil, err
	}
	components.Sinks = sinks

	// 5. Orchestrator
	step := retry.FromConfig(cfg.Retry().Step)
	orch, err := orchestrator.New(orchestrator.Dependencies{
		Sessions:  f.sessions(cfg, logger),
		Extractor: form.NewExtractor(cfg.Form(), logger),
		Mapper:    mapping.NewMapper(logger, cfg.Mapping(), semantic),
		Filler:    form.NewFiller(cfg.Form(), cfg.Applicant(), logger),
		Verifier:  form.NewVerifier(cfg.Form(), logger),
		Captcha:   captcha.NewResolver(components.Solver, step, logger),
		Attempts:  retry.FromConfig(cfg.Retry().Attempt),
		Store:     components.Store,
		Sinks:     sinks,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	components.Orchestrator = orch
	logger.Debug("Orchestrator initialized.")

	return components, nil
}
