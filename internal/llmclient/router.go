package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// ErrUnknownTier is returned for a request naming a tier the router has no
// model for.
var ErrUnknownTier = errors.New("unknown model tier")

// LLMRouter sends fast-tier requests to a small model and everything else
// to the primary one.
type LLMRouter struct {
	fast    schemas.LLMClient
	primary schemas.LLMClient
	logger  *zap.Logger
}

// NewLLMRouter needs both clients; the same client may serve both tiers.
func NewLLMRouter(logger *zap.Logger, fast, primary schemas.LLMClient) (*LLMRouter, error) {
	switch {
	case fast == nil:
		return nil, errors.New("llm router: fast tier client is nil")
	case primary == nil:
		return nil, errors.New("llm router: primary tier client is nil")
	}
	return &LLMRouter{fast: fast, primary: primary, logger: logger.Named("llm_router")}, nil
}

func (r *LLMRouter) clientFor(tier schemas.ModelTier) (schemas.LLMClient, error) {
	switch tier {
	case schemas.TierFast:
		return r.fast, nil
	case "", schemas.TierPowerful:
		return r.primary, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
}

// Generate forwards req to the client for req.Tier. An empty tier means
// the primary model.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	client, err := r.clientFor(req.Tier)
	if err != nil {
		return "", err
	}
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}
	r.logger.Debug("LLM request routed.", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}

// Close closes both clients, once each when they are the same client.
func (r *LLMRouter) Close() error {
	if r.fast == r.primary {
		return r.primary.Close()
	}
	return errors.Join(r.fast.Close(), r.primary.Close())
}
