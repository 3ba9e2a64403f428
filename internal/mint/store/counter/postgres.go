package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore increments with an upsert so the row is created on first use
// and the read-modify-write happens under the row lock.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

func (s *PostgresStore) Increment(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO ` + s.table + ` AS c (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = c.value + 1
		RETURNING value`
	var n int64
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return n, nil
}

func (s *PostgresStore) Current(ctx context.Context, name string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM `+s.table+` WHERE name = $1`, name).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return n, nil
}

func (s *PostgresStore) Reset(ctx context.Context, name string) error {
	return s.Set(ctx, name, 0)
}

func (s *PostgresStore) Set(ctx context.Context, name string, value int64) error {
	query := `
		INSERT INTO ` + s.table + ` (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.db.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("set counter %s: %w", name, err)
	}
	return nil
}
