package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txContextKey struct{}

// ContextWithTx stores an open transaction in the context so that multiple
// repositories can participate in the same unit of work.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext extracts the active transaction, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}

// From resolves the querier for the current context: the enclosing
// transaction when one is active, otherwise the pool itself.
func From(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return pool
}

// txAttempts bounds automatic re-runs of a transaction that lost a
// serialization race.
const txAttempts = 3

// ErrSerialization marks a transaction that still lost its
// serialization race after txAttempts runs. The HTTP layer maps it to
// a retryable conflict.
var ErrSerialization = errors.New("platform/db: serialization failure")

// WithTx executes fn within a RepeatableRead transaction. Nested calls join
// the transaction already carried by the context. Serialization losers
// (SQLSTATE 40001/40P01) are re-run up to txAttempts times before the
// failure surfaces as ErrSerialization; fn must therefore be safe to
// re-run, which holds as long as all writes go through the transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return retrySerialization(func() error {
		return runTx(ctx, pool, fn)
	})
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

func retrySerialization(run func() error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = run()
		if !IsSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrSerialization, txAttempts, err)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsSerializationFailure reports whether err is a PostgreSQL
// serialization failure or deadlock abort (SQLSTATE 40001, 40P01).
// Both roll back only the losing transaction, so the work can be
// re-run.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
