package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func pgError(code string) error {
	return &pgconn.PgError{Code: code, Message: "could not serialize access due to concurrent update"}
}

func TestIsUniqueViolationUnwraps(t *testing.T) {
	require.True(t, IsUniqueViolation(pgError("23505")))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert account: %w", pgError("23505"))))
	require.False(t, IsUniqueViolation(pgError("40001")))
	require.False(t, IsUniqueViolation(errors.New("plain")))
	require.False(t, IsUniqueViolation(nil))
}

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(pgError("40001")))
	require.True(t, IsSerializationFailure(pgError("40P01")))
	require.True(t, IsSerializationFailure(fmt.Errorf("post document: %w", pgError("40001"))))
	require.False(t, IsSerializationFailure(pgError("23505")))
	require.False(t, IsSerializationFailure(errors.New("plain")))
	require.False(t, IsSerializationFailure(nil))
}

func TestRetrySerializationReRunsLoser(t *testing.T) {
	calls := 0
	err := retrySerialization(func() error {
		calls++
		if calls < 3 {
			return pgError("40001")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrySerializationBounded(t *testing.T) {
	calls := 0
	err := retrySerialization(func() error {
		calls++
		return pgError("40001")
	})
	require.ErrorIs(t, err, ErrSerialization)
	require.Equal(t, txAttempts, calls)
}

func TestRetrySerializationPassesOtherErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retrySerialization(func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls, "non-serialization errors must not be re-run")
}
