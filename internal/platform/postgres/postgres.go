package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"mintgate/internal/platform/config"
)

// Open returns a pooled *sql.DB over the pgx driver. Returns nil when no URL is
// configured.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the four tables if they are missing. Production
// deployments provision tables out of band; this serves local runs and tests.
func EnsureSchema(ctx context.Context, db *sql.DB, t config.Tables) error {
	whitelist := pq.QuoteIdentifier(t.Whitelist)
	records := pq.QuoteIdentifier(t.Records)
	pool := pq.QuoteIdentifier(t.Pool)
	counters := pq.QuoteIdentifier(t.Counters)
	ownerIdx := pq.QuoteIdentifier(t.Records + "_owner_idx")
	whitelistIdx := pq.QuoteIdentifier(t.Whitelist + "_address_idx")

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + whitelist + ` (
			id BIGSERIAL PRIMARY KEY,
			address TEXT NOT NULL,
			category INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + whitelistIdx + ` ON ` + whitelist + ` (address)`,
		`CREATE TABLE IF NOT EXISTS ` + records + ` (
			id BIGINT PRIMARY KEY,
			category INTEGER NOT NULL,
			owner_address TEXT NOT NULL,
			nonce TEXT NOT NULL DEFAULT '',
			issued_at BIGINT NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			token_uri TEXT NOT NULL DEFAULT '',
			transaction_hash TEXT NOT NULL DEFAULT '',
			block_number BIGINT NOT NULL DEFAULT 0,
			gas_used BIGINT NOT NULL DEFAULT 0,
			confirmed_at BIGINT NOT NULL DEFAULT 0,
			confirmed_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS ` + ownerIdx + ` ON ` + records + ` (owner_address)`,
		`CREATE TABLE IF NOT EXISTS ` + pool + ` (
			idx BIGINT PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + counters + ` (
			name TEXT PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
