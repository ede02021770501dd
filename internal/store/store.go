package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// DefaultListLimit caps ListAttempts when the caller passes a non-positive limit.
const DefaultListLimit = 20

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS application_attempts (
        id UUID PRIMARY KEY,
        job_url TEXT NOT NULL,
        profile_ref TEXT NOT NULL,
        attempt_number INTEGER NOT NULL,
        result TEXT NOT NULL,
        failure_reason TEXT NOT NULL DEFAULT '',
        started_at TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL,
        detail JSONB NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS application_attempts_started_at_idx ON application_attempts (started_at DESC);`,
	`CREATE TABLE IF NOT EXISTS attempt_outcomes (
        attempt_id UUID NOT NULL REFERENCES application_attempts (id) ON DELETE CASCADE,
        identifier TEXT NOT NULL,
        kind TEXT NOT NULL,
        attempted BOOLEAN NOT NULL,
        succeeded BOOLEAN NOT NULL,
        failure_reason TEXT NOT NULL DEFAULT ''
    );`,
}

const (
	sqlUpsertAttempt = `
        INSERT INTO application_attempts (id, job_url, profile_ref, attempt_number, result, failure_reason, started_at, finished_at, detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            result = EXCLUDED.result,
            failure_reason = EXCLUDED.failure_reason,
            finished_at = EXCLUDED.finished_at,
            detail = EXCLUDED.detail;
    `
	sqlDeleteOutcomes = `DELETE FROM attempt_outcomes WHERE attempt_id = $1;`
	sqlListAttempts   = `
        SELECT detail
        FROM application_attempts
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

var outcomeColumns = []string{"attempt_id", "identifier", "kind", "attempted", "succeeded", "failure_reason"}

// Store is the PostgreSQL implementation of schemas.AttemptStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.AttemptStore = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the attempt tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// SaveAttempt writes the attempt and its per-field outcomes in one
// transaction. Saving the same attempt ID again replaces its outcomes.
func (s *Store) SaveAttempt(ctx context.Context, attempt *schemas.ApplicationAttempt) error {
	if attempt == nil || attempt.ID == "" {
		return fmt.Errorf("attempt must have an ID")
	}

	detail, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlUpsertAttempt,
		attempt.ID, attempt.JobURL, attempt.ProfileRef, attempt.Number,
		string(attempt.Result), string(attempt.FailureReason),
		attempt.StartedAt.UTC(), attempt.FinishedAt.UTC(),
		detail,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attempt: %w", err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteOutcomes, attempt.ID); err != nil {
		return fmt.Errorf("failed to clear outcomes: %w", err)
	}
	if err := s.persistOutcomes(ctx, tx, attempt.ID, attempt.Outcomes); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, attemptID string, outcomes []schemas.FillOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []interface{}{attemptID, o.Identifier, string(o.Kind), o.Attempted, o.Succeeded, string(o.FailureReason)}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"attempt_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy outcomes: %w", err)
	}
	if int(copyCount) != len(outcomes) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(outcomes), copyCount)
	}
	return nil
}

// ListAttempts returns the most recent attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]schemas.ApplicationAttempt, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.pool.Query(ctx, sqlListAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]schemas.ApplicationAttempt, 0, limit)
	for rows.Next() {
		var detail []byte
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		var a schemas.ApplicationAttempt
		if err := json.Unmarshal(detail, &a); err != nil {
			return nil, fmt.Errorf("failed to decode attempt detail: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return attempts, nil
}
