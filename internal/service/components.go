package service

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/observability"
	"github.com/xkilldash9x/autoapply-cli/internal/orchestrator"
)

// Components holds everything an application run needs and owns the
// lifecycle of the long-lived clients behind it.
type Components struct {
	Orchestrator *orchestrator.Orchestrator
	// Store, Solver and LLM are nil when their feature is not configured.
	Store  schemas.AttemptStore
	Solver schemas.CaptchaSolver
	LLM    schemas.LLMClient
	Sinks  []schemas.ArtifactSink
	DBPool *pgxpool.Pool
}

// Shutdown releases the LLM client and the database pool. Browser sessions
// are per attempt and already closed by the orchestrator.
func (c *Components) Shutdown() error {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	var errs []error
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
			errs = append(errs, err)
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Debug("All components shut down.")
	return errors.Join(errs...)
}
