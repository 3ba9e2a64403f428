// Package backend selects and opens the mint stores for the configured
// deployment: Redis for counters, pool and claims, Postgres for records and
// the whitelist, and in-memory stores for whatever is not configured.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/store/claim"
	"mintgate/internal/mint/store/counter"
	"mintgate/internal/mint/store/identifier"
	"mintgate/internal/mint/store/record"
	"mintgate/internal/mint/store/whitelist"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/postgres"
	"mintgate/internal/platform/redis"
	"mintgate/internal/ratelimit"
)

type RecordStore interface {
	FindByOwner(ctx context.Context, owner string) ([]models.MintRecord, error)
	FindByID(ctx context.Context, id int64) (*models.MintRecord, error)
	Create(ctx context.Context, rec models.MintRecord) error
	Update(ctx context.Context, id int64, f record.Fields) error
	Reissue(ctx context.Context, id int64, issuedAt int64) error
	Confirm(ctx context.Context, category int, ev models.ConfirmationEvidence, confirmedAt int64) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type WhitelistStore interface {
	FindByAddress(ctx context.Context, address string) ([]models.WhitelistEntry, error)
}

type CounterStore interface {
	Increment(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
	Reset(ctx context.Context, name string) error
	Set(ctx context.Context, name string, value int64) error
}

type IdentifierStore interface {
	Lookup(ctx context.Context, index int64) (int64, error)
	PutBatch(ctx context.Context, entries []identifier.Entry) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type ClaimStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Stores is the opened set of mint stores.
type Stores struct {
	Records   RecordStore
	Whitelist WhitelistStore
	Counters  CounterStore
	Pool      IdentifierStore
	Claims    ClaimStore
	Limits    ratelimit.Store

	// Pingers holds one reachability check per external store.
	Pingers map[string]func(context.Context) error

	memoryPool bool
	closers    []func() error
}

// Open connects to the configured stores and falls back to memory for the
// rest. Seed entries are loaded into the in-memory whitelist only.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{Pingers: map[string]func(context.Context) error{}}

	rdb, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	if cfg.Postgres.URL != "" {
		db, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		s.Pingers["postgres"] = db.PingContext
		if cfg.Postgres.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, db, cfg.Tables); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
	}
	if rdb != nil {
		s.closers = append(s.closers, rdb.Close)
		s.Pingers["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, rdb) }
	}

	switch {
	case db != nil:
		s.Records = record.NewPostgresStore(db, cfg.Tables.Records)
		s.Whitelist = whitelist.NewPostgresStore(db, cfg.Tables.Whitelist)
	default:
		seed, err := cfg.Mint.WhitelistSeed()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		wl := whitelist.NewInMemoryStore()
		for _, e := range seed {
			wl.Add(models.WhitelistEntry{Address: e.Address, Category: e.Category})
		}
		s.Records = record.NewInMemoryStore()
		s.Whitelist = wl
		logger.WarnContext(ctx, "mint records and whitelist are held in memory", "whitelist_entries", len(seed))
	}

	switch {
	case rdb != nil:
		s.Counters = counter.NewRedisStore(rdb, cfg.Tables.Counters)
		s.Pool = identifier.NewRedisStore(rdb, cfg.Tables.Pool)
		s.Claims = claim.NewRedisStore(rdb, cfg.Tables.Records+":claim")
		s.Limits = ratelimit.NewRedisStore(rdb, "ratelimit")
	case db != nil:
		s.Counters = counter.NewPostgresStore(db, cfg.Tables.Counters)
		s.Pool = identifier.NewPostgresStore(db, cfg.Tables.Pool)
		s.Claims = claim.NewInMemoryStore()
		s.Limits = ratelimit.NewInMemoryStore()
		logger.WarnContext(ctx, "claims are process-local without redis; run a single instance")
	default:
		s.Counters = counter.NewInMemoryStore()
		s.Pool = identifier.NewInMemoryStore()
		s.Claims = claim.NewInMemoryStore()
		s.Limits = ratelimit.NewInMemoryStore()
		s.memoryPool = true
	}
	return s, nil
}

// EphemeralPool reports whether the identifier pool lives in this process
// and so must be built at startup.
func (s *Stores) EphemeralPool() bool {
	return s.memoryPool
}

// Close releases every connection Open made.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
