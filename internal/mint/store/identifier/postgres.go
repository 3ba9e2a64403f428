package identifier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"mintgate/pkg/platform/sentinel"
)

const postgresBatchSize = 5000

type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

func (s *PostgresStore) Lookup(ctx context.Context, index int64) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM `+s.table+` WHERE idx = $1`, index).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup pool index %d: %w", index, err)
	}
	return v, nil
}

// PutBatch inserts with unnest, one round trip per chunk.
func (s *PostgresStore) PutBatch(ctx context.Context, entries []Entry) error {
	query := `
		INSERT INTO ` + s.table + ` (idx, value)
		SELECT unnest($1::bigint[]), unnest($2::bigint[])
		ON CONFLICT (idx) DO UPDATE SET value = EXCLUDED.value`
	for start := 0; start < len(entries); start += postgresBatchSize {
		end := min(start+postgresBatchSize, len(entries))
		indexes := make([]int64, 0, end-start)
		values := make([]int64, 0, end-start)
		for _, e := range entries[start:end] {
			indexes = append(indexes, e.Index)
			values = append(values, e.Value)
		}
		if _, err := s.db.ExecContext(ctx, query, pq.Array(indexes), pq.Array(values)); err != nil {
			return fmt.Errorf("write pool batch: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table); err != nil {
		return fmt.Errorf("clear pool: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pool: %w", err)
	}
	return n, nil
}
