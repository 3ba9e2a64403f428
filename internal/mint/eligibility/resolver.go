// Package eligibility decides whether an address may receive an authorization
// and whether it needs a new identifier or a reissue of its pending one.
package eligibility

import (
	"context"
	"time"

	"mintgate/internal/mint/models"
	"mintgate/pkg/requestcontext"
)

const (
	DefaultGraceWindow      = 360 * time.Second
	DefaultOverflowCategory = 2
)

type RecordReader interface {
	FindByOwner(ctx context.Context, owner string) ([]models.MintRecord, error)
}

type WhitelistReader interface {
	FindByAddress(ctx context.Context, address string) ([]models.WhitelistEntry, error)
}

// Resolver applies the eligibility rules. Prior records take precedence over
// the whitelist.
type Resolver struct {
	records          RecordReader
	whitelist        WhitelistReader
	graceWindow      time.Duration
	overflowCategory int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGraceWindow sets how long a pending authorization blocks a retry.
func WithGraceWindow(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.graceWindow = d
		}
	}
}

// WithOverflowCategory sets the category for addresses listed more than once.
func WithOverflowCategory(category int) Option {
	return func(r *Resolver) {
		r.overflowCategory = category
	}
}

func New(records RecordReader, whitelist WhitelistReader, opts ...Option) *Resolver {
	r := &Resolver{
		records:          records,
		whitelist:        whitelist,
		graceWindow:      DefaultGraceWindow,
		overflowCategory: DefaultOverflowCategory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GraceWindow is the configured soft timeout of a pending authorization.
func (r *Resolver) GraceWindow() time.Duration {
	return r.graceWindow
}

// Resolve returns NewAllocation or Reissue, or fails with AlreadyMinted,
// TooSoonToRetry, NotWhitelisted or StoreUnavailable.
func (r *Resolver) Resolve(ctx context.Context, address string) (models.Eligibility, error) {
	address = models.NormalizeAddress(address)

	records, err := r.records.FindByOwner(ctx, address)
	if err != nil {
		return nil, models.StoreFailure("find records by owner", err)
	}

	for _, rec := range records {
		if rec.IsConfirmed() {
			return nil, &models.AlreadyMintedError{TokenID: rec.TokenID, TokenURI: rec.TokenURI}
		}
	}

	now := requestcontext.Now(ctx).Unix()
	var stale *models.MintRecord
	for i := range records {
		rec := &records[i]
		if now-rec.IssuedAt < int64(r.graceWindow/time.Second) {
			return nil, models.ErrTooSoonToRetry
		}
		if stale == nil || rec.IssuedAt > stale.IssuedAt ||
			(rec.IssuedAt == stale.IssuedAt && rec.TokenID > stale.TokenID) {
			stale = rec
		}
	}
	if stale != nil {
		return models.Reissue{Nonce: stale.Nonce, TokenID: stale.TokenID, Category: stale.Category}, nil
	}

	entries, err := r.whitelist.FindByAddress(ctx, address)
	if err != nil {
		return nil, models.StoreFailure("find whitelist entries", err)
	}
	switch len(entries) {
	case 0:
		return nil, models.ErrNotWhitelisted
	case 1:
		return models.NewAllocation{Category: entries[0].Category}, nil
	default:
		return models.NewAllocation{Category: r.overflowCategory}, nil
	}
}
