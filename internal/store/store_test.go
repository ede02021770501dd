package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	json "github.com/json-iterator/go"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// anyArgs matches n parameters of any value. Expectations without
// WithArgs reject parameterized calls.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// upsertArgs is the parameter count of sqlUpsertAttempt.
const upsertArgs = 9

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleAttempt() *schemas.ApplicationAttempt {
	started := time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	return &schemas.ApplicationAttempt{
		ID:         uuid.NewString(),
		JobURL:     "https://jobs.example.com/123",
		ProfileRef: "data/user_metadata.json",
		Number:     2,
		StartedAt:  started,
		FinishedAt: started.Add(40 * time.Second),
		Outcomes: []schemas.FillOutcome{
			{Identifier: "first_name", Kind: schemas.KindText, Attempted: true, Succeeded: true},
			{Identifier: "resume", Kind: schemas.KindFile, Attempted: true, FailureReason: schemas.CodeResumeFileMissing},
		},
		Required: []string{"first_name", "resume"},
		Filled:   []string{"first_name"},
		Result:   schemas.ResultSubmittedUnconfirmed,
		Stats:    schemas.NewSessionStats(),
	}
}

func TestNew_PingFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Run("runs every statement", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		for _, stmt := range schemaStatements {
			mockPool.ExpectExec(flexibleSQLMatcher(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		}
		require.NoError(t, s.EnsureSchema(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(flexibleSQLMatcher(schemaStatements[0])).WillReturnError(errors.New("permission denied"))
		assert.ErrorContains(t, s.EnsureSchema(context.Background()), "permission denied")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSaveAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("writes attempt and outcomes in one transaction", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		a := sampleAttempt()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertAttempt)).
			WithArgs(a.ID, a.JobURL, a.ProfileRef, 2, "SUBMITTED_UNCONFIRMED", "",
				a.StartedAt.UTC(), a.FinishedAt.UTC(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).
			WithArgs(a.ID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"attempt_outcomes"}, outcomeColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveAttempt(ctx, a))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "a closed transaction is not a rollback failure")
	})

	t.Run("skips the copy when there are no outcomes", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		a := sampleAttempt()
		a.Outcomes = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertAttempt)).WithArgs(anyArgs(upsertArgs)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveAttempt(ctx, a))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rolls back on copy mismatch", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		a := sampleAttempt()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertAttempt)).WithArgs(anyArgs(upsertArgs)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteOutcomes)).WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"attempt_outcomes"}, outcomeColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveAttempt(ctx, a)
		assert.ErrorContains(t, err, "mismatch in copied outcomes count: expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("logs a failed rollback", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertAttempt)).WithArgs(anyArgs(upsertArgs)...).WillReturnError(errors.New("unique violation"))
		mockPool.ExpectRollback().WillReturnError(errors.New("connection reset"))

		err := s.SaveAttempt(ctx, sampleAttempt())
		assert.ErrorContains(t, err, "failed to upsert attempt")
		assert.ErrorContains(t, err, "unique violation")
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Failed to rollback transaction", logs.All()[0].Message)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rejects attempts without an ID", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		assert.Error(t, s.SaveAttempt(ctx, &schemas.ApplicationAttempt{}))
		assert.Error(t, s.SaveAttempt(ctx, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestListAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes detail rows", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		a := sampleAttempt()
		detail, err := json.Marshal(a)
		require.NoError(t, err)

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListAttempts)).
			WithArgs(5).
			WillReturnRows(pgxmock.NewRows([]string{"detail"}).AddRow(detail))

		got, err := s.ListAttempts(ctx, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, a.JobURL, got[0].JobURL)
		assert.Equal(t, schemas.ResultSubmittedUnconfirmed, got[0].Result)
		assert.Len(t, got[0].Outcomes, 2)
		assert.True(t, a.StartedAt.Equal(got[0].StartedAt))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("applies the default limit", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListAttempts)).
			WithArgs(DefaultListLimit).
			WillReturnRows(pgxmock.NewRows([]string{"detail"}))

		got, err := s.ListAttempts(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListAttempts)).WithArgs(3).WillReturnError(errors.New("relation does not exist"))

		_, err := s.ListAttempts(ctx, 3)
		assert.ErrorContains(t, err, "failed to query attempts")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("corrupt detail", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListAttempts)).
			WithArgs(3).
			WillReturnRows(pgxmock.NewRows([]string{"detail"}).AddRow([]byte("{not json")))

		_, err := s.ListAttempts(ctx, 3)
		assert.ErrorContains(t, err, "failed to decode attempt detail")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
