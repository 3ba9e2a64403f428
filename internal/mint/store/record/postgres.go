package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/sentinel"
)

const recordColumns = `id, category, owner_address, nonce, issued_at, state, token_uri,
	transaction_hash, block_number, gas_used, confirmed_at, confirmed_by`

// PostgresStore persists records in a single table keyed by identifier.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

func (s *PostgresStore) FindByOwner(ctx context.Context, owner string) ([]models.MintRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ` + s.table + ` WHERE owner_address = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, models.NormalizeAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("find records by owner: %w", err)
	}
	defer rows.Close()

	var out []models.MintRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.MintRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ` + s.table + ` WHERE id = $1`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return r, nil
}

// Create inserts rec. ON CONFLICT DO NOTHING makes the insert conditional on
// the identifier being unused.
func (s *PostgresStore) Create(ctx context.Context, rec models.MintRecord) error {
	query := `
		INSERT INTO ` + s.table + ` (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		rec.TokenID, rec.Category, models.NormalizeAddress(rec.Owner), rec.Nonce, rec.IssuedAt,
		string(rec.State), rec.TokenURI, rec.TransactionHash, int64(rec.BlockNumber),
		int64(rec.GasUsed), rec.ConfirmedAt, string(rec.ConfirmedBy))
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create record rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, f Fields) error {
	sets, args := f.assignments()
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := `UPDATE ` + s.table + ` SET ` + strings.Join(sets, ", ") + fmt.Sprintf(` WHERE id = $%d`, len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Reissue(ctx context.Context, id int64, issuedAt int64) error {
	return s.Update(ctx, id, Fields{IssuedAt: &issuedAt})
}

// Confirm upserts the confirmed state. Category, nonce and issue time of an
// existing record are preserved.
func (s *PostgresStore) Confirm(ctx context.Context, category int, ev models.ConfirmationEvidence, confirmedAt int64) error {
	query := `
		INSERT INTO ` + s.table + ` (` + recordColumns + `)
		VALUES ($1, $2, $3, '', 0, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			owner_address = EXCLUDED.owner_address,
			state = EXCLUDED.state,
			token_uri = EXCLUDED.token_uri,
			transaction_hash = EXCLUDED.transaction_hash,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			confirmed_at = EXCLUDED.confirmed_at,
			confirmed_by = EXCLUDED.confirmed_by`
	_, err := s.db.ExecContext(ctx, query,
		ev.TokenID, category, models.NormalizeAddress(ev.Recipient), string(models.StateConfirmed),
		ev.TokenURI, ev.TransactionHash, int64(ev.BlockNumber), int64(ev.GasUsed), confirmedAt, string(ev.Source))
	if err != nil {
		return fmt.Errorf("confirm record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM `+s.table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.MintRecord, error) {
	var (
		r                    models.MintRecord
		state, confirmedBy   string
		blockNumber, gasUsed int64
	)
	if err := row.Scan(&r.TokenID, &r.Category, &r.Owner, &r.Nonce, &r.IssuedAt, &state, &r.TokenURI,
		&r.TransactionHash, &blockNumber, &gasUsed, &r.ConfirmedAt, &confirmedBy); err != nil {
		return nil, err
	}
	r.State = models.State(state)
	r.ConfirmedBy = models.ConfirmationSource(confirmedBy)
	r.BlockNumber = uint64(blockNumber)
	r.GasUsed = uint64(gasUsed)
	return &r, nil
}

func (f Fields) assignments() ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Owner != nil {
		add("owner_address", models.NormalizeAddress(*f.Owner))
	}
	if f.IssuedAt != nil {
		add("issued_at", *f.IssuedAt)
	}
	if f.State != nil {
		add("state", string(*f.State))
	}
	if f.TokenURI != nil {
		add("token_uri", *f.TokenURI)
	}
	if f.TransactionHash != nil {
		add("transaction_hash", *f.TransactionHash)
	}
	if f.BlockNumber != nil {
		add("block_number", int64(*f.BlockNumber))
	}
	if f.GasUsed != nil {
		add("gas_used", int64(*f.GasUsed))
	}
	if f.ConfirmedAt != nil {
		add("confirmed_at", *f.ConfirmedAt)
	}
	if f.ConfirmedBy != nil {
		add("confirmed_by", string(*f.ConfirmedBy))
	}
	return sets, args
}
