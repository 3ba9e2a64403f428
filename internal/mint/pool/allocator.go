package pool

import (
	"context"
	"errors"
	"fmt"

	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/sentinel"
)

// CounterStore is the atomic per-category counter.
type CounterStore interface {
	Increment(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
}

// IdentifierReader resolves a pool index to its identifier.
type IdentifierReader interface {
	Lookup(ctx context.Context, index int64) (int64, error)
}

// Allocator hands out identifiers in pool order. Distinct counter values map
// to distinct indexes, so no two callers can receive the same identifier.
type Allocator struct {
	layout   Layout
	counters CounterStore
	pool     IdentifierReader
}

func NewAllocator(layout Layout, counters CounterStore, pool IdentifierReader) *Allocator {
	return &Allocator{layout: layout, counters: counters, pool: pool}
}

// Layout exposes the category ranges the allocator serves.
func (a *Allocator) Layout() Layout {
	return a.layout
}

// Allocate consumes the next slot of category. A consumed slot is never
// returned, even if the caller later fails.
func (a *Allocator) Allocate(ctx context.Context, category int) (int64, error) {
	if !a.layout.Valid(category) {
		return 0, fmt.Errorf("allocate: unknown category %d", category)
	}
	n, err := a.counters.Increment(ctx, models.CounterName(category))
	if err != nil {
		return 0, models.StoreFailure("increment counter", err)
	}
	if n > a.layout.Capacity(category) {
		return 0, models.ErrCategoryExhausted
	}

	index := a.layout.Start(category) + n - 1
	id, err := a.pool.Lookup(ctx, index)
	if errors.Is(err, sentinel.ErrNotFound) {
		// A rebuilt pool can hold fewer entries than the category capacity.
		return 0, models.ErrCategoryExhausted
	}
	if err != nil {
		return 0, models.StoreFailure("lookup pool index", err)
	}
	return id, nil
}

// Status reports counter progress for every category.
func (a *Allocator) Status(ctx context.Context) ([]models.CategoryStatus, error) {
	out := make([]models.CategoryStatus, 0, a.layout.Categories())
	for k := 0; k < a.layout.Categories(); k++ {
		n, err := a.counters.Current(ctx, models.CounterName(k))
		if err != nil {
			return nil, models.StoreFailure("read counter", err)
		}
		capacity := a.layout.Capacity(k)
		allocated := min(n, capacity)
		out = append(out, models.CategoryStatus{
			Category:  k,
			Start:     a.layout.Start(k),
			Capacity:  capacity,
			Allocated: allocated,
			Remaining: capacity - allocated,
		})
	}
	return out, nil
}
