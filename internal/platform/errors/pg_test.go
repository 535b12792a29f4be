package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestDBErrorCode(t *testing.T) {
	cases := map[string]ErrorCode{
		pgErrUniqueViolation:           ErrorCodeDuplicateKey,
		pgErrForeignKeyViolation:       ErrorCodeInvalidArgument,
		pgErrNotNullViolation:          ErrorCodeValidation,
		pgErrCheckViolation:            ErrorCodeValidation,
		pgErrInvalidTextRepresentation: ErrorCodeInvalidArgument,
		pgErrSerializationFailure:      ErrorCodeDB,
		pgErrCannotConnectNow:          ErrorCodeUnavailable,
		"XX000":                        ErrorCodeDB,
	}
	for state, want := range cases {
		got, ok := DBErrorCode(fmt.Errorf("exec: %w", &pgconn.PgError{Code: state}))
		assert.True(t, ok, state)
		assert.Equal(t, want, got, state)
	}
	_, ok := DBErrorCode(stderrs.New("not pg"))
	assert.False(t, ok)
}

func TestFromPostgres(t *testing.T) {
	assert.NoError(t, FromPostgres(nil, "x"))
	assert.NoError(t, FromPostgresf(nil, "x %d", 1))

	err := FromPostgresf(&pgconn.PgError{Code: pgErrNotNullViolation, ColumnName: "sla_status"}, "upsert %s", "118")
	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, ErrorCodeValidation, e.Code())
	assert.Equal(t, "sla_status", e.Field())
	assert.Contains(t, err.Error(), "upsert 118")

	assert.True(t, IsCode(FromPostgres(stderrs.New("conn reset"), "watermarks"), ErrorCodeDB))
}

func TestIsRetryable(t *testing.T) {
	for _, state := range []string{pgErrSerializationFailure, pgErrDeadlockDetected, pgErrLockNotAvailable, pgErrQueryCanceled} {
		assert.True(t, IsRetryable(FromPostgres(&pgconn.PgError{Code: state}, "upsert")), state)
	}
	assert.False(t, IsRetryable(&pgconn.PgError{Code: pgErrUniqueViolation}))
	assert.True(t, IsRetryable(stderrs.New("commit unexpectedly resulted in rollback")))
	assert.True(t, Retryable(fmt.Errorf("tx: %w", stderrs.New("ERROR: canceling statement due to statement timeout"))))
	assert.False(t, IsRetryable(stderrs.New("syntax error")))
	assert.False(t, IsRetryable(nil))
	assert.False(t, Retryable(context.DeadlineExceeded))
}
