package sequence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// PostgresStore persists counters in doc_sequences. The upsert
// increments under a row lock, which serialises concurrent callers on
// the same (kind, day) pair.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NextSeq increments and returns the counter for (kind, day).
func (s *PostgresStore) NextSeq(ctx context.Context, kind, day string) (int, error) {
	q := db.From(ctx, s.pool)
	var seq int
	err := q.QueryRow(ctx, `
		INSERT INTO doc_sequences (kind, day, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, day)
		DO UPDATE SET seq = doc_sequences.seq + 1
		RETURNING seq`, kind, day).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}
