package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/store/identifier"
)

// IdentifierWriter replaces the pool table.
type IdentifierWriter interface {
	PutBatch(ctx context.Context, entries []identifier.Entry) error
	Clear(ctx context.Context) error
}

// CounterResetter zeroes a category counter after a rebuild.
type CounterResetter interface {
	Reset(ctx context.Context, name string) error
}

// Builder writes a freshly shuffled pool.
type Builder struct {
	layout   Layout
	pool     IdentifierWriter
	counters CounterResetter
	rng      *rand.Rand
	logger   *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithSeed makes the shuffle reproducible.
func WithSeed(seed1, seed2 uint64) BuilderOption {
	return func(b *Builder) {
		b.rng = rand.New(rand.NewPCG(seed1, seed2))
	}
}

func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBuilder(layout Layout, pool IdentifierWriter, counters CounterResetter, opts ...BuilderOption) *Builder {
	b := &Builder{
		layout:   layout,
		pool:     pool,
		counters: counters,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CategoryReport is the outcome of building one category.
type CategoryReport struct {
	Category int
	Start    int64
	Capacity int64
	Excluded int
	Inserted int
}

// Report summarises a build.
type Report struct {
	Categories []CategoryReport
	Inserted   int
}

// Build clears the pool, writes a permutation of every category's identifiers
// minus exclude, and resets the counters. Surviving identifiers of category k
// are stored at indexes Start(k), Start(k)+1, ... so allocation keeps working
// with a zeroed counter.
func (b *Builder) Build(ctx context.Context, exclude map[int64]struct{}) (Report, error) {
	if err := b.pool.Clear(ctx); err != nil {
		return Report{}, fmt.Errorf("clear pool: %w", err)
	}

	var report Report
	for k := 0; k < b.layout.Categories(); k++ {
		start, capacity := b.layout.Start(k), b.layout.Capacity(k)
		ids := make([]int64, 0, capacity)
		for id := start; id < start+capacity; id++ {
			if _, skip := exclude[id]; !skip {
				ids = append(ids, id)
			}
		}
		b.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		entries := make([]identifier.Entry, len(ids))
		for i, id := range ids {
			entries[i] = identifier.Entry{Index: start + int64(i), Value: id}
		}
		if err := b.pool.PutBatch(ctx, entries); err != nil {
			return report, fmt.Errorf("write category %d: %w", k, err)
		}
		if err := b.counters.Reset(ctx, models.CounterName(k)); err != nil {
			return report, fmt.Errorf("reset category %d counter: %w", k, err)
		}

		cr := CategoryReport{
			Category: k,
			Start:    start,
			Capacity: capacity,
			Excluded: int(capacity) - len(ids),
			Inserted: len(ids),
		}
		report.Categories = append(report.Categories, cr)
		report.Inserted += cr.Inserted
		b.logger.InfoContext(ctx, "pool category built",
			"category", k,
			"start", start,
			"capacity", capacity,
			"inserted", cr.Inserted,
			"excluded", cr.Excluded,
		)
	}
	return report, nil
}
