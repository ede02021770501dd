package llmclient

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

// NewClient creates the LLMClient described by cfg. When a fast model is
// configured the result is a router that sends fast-tier requests to it and
// everything else to the primary model.
func NewClient(cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	primary, err := NewModelClient(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	if cfg.FastLLM.Model == "" {
		return primary, nil
	}

	fastCfg := cfg.FastLLM
	if fastCfg.Provider == "" {
		fastCfg.Provider = cfg.LLM.Provider
	}
	if fastCfg.APIKey == "" && fastCfg.Provider == cfg.LLM.Provider {
		fastCfg.APIKey = cfg.LLM.APIKey
	}
	if fastCfg.APITimeout == 0 {
		fastCfg.APITimeout = cfg.LLM.APITimeout
	}
	fast, err := NewModelClient(fastCfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("fast tier: %w", err), primary.Close())
	}
	return NewLLMRouter(logger, fast, primary)
}

// NewModelClient creates a client for a single model.
func NewModelClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}
