package whitelist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"mintgate/internal/mint/models"
)

// PostgresStore reads whitelist rows. Addresses are compared lowercased since
// ingestion may keep the checksum casing.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) ([]models.WhitelistEntry, error) {
	query := `SELECT address, category FROM ` + s.table + ` WHERE lower(address) = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, models.NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("find whitelist entries: %w", err)
	}
	defer rows.Close()

	var out []models.WhitelistEntry
	for rows.Next() {
		var e models.WhitelistEntry
		if err := rows.Scan(&e.Address, &e.Category); err != nil {
			return nil, fmt.Errorf("scan whitelist entry: %w", err)
		}
		e.Address = models.NormalizeAddress(e.Address)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whitelist entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
