package chainwatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CursorStore persists the last applied block across restarts.
type CursorStore interface {
	LoadCursor(ctx context.Context) (block uint64, ok bool, err error)
	SaveCursor(ctx context.Context, block uint64) error
}

// Counters is the subset of the counter store the cursor is kept in.
type Counters interface {
	Current(ctx context.Context, name string) (int64, error)
	Set(ctx context.Context, name string, value int64) error
}

// CounterCursor keeps the cursor as a named row of the counters table. A zero
// value means nothing was saved yet.
type CounterCursor struct {
	counters Counters
	name     string
}

// NewCounterCursor names the cursor after the contract so switching contracts
// starts a fresh scan.
func NewCounterCursor(counters Counters, contract common.Address) *CounterCursor {
	return &CounterCursor{counters: counters, name: "chainwatch:" + strings.ToLower(contract.Hex())}
}

func (c *CounterCursor) LoadCursor(ctx context.Context) (uint64, bool, error) {
	v, err := c.counters.Current(ctx, c.name)
	if err != nil {
		return 0, false, fmt.Errorf("load chain cursor: %w", err)
	}
	if v <= 0 {
		return 0, false, nil
	}
	return uint64(v), true, nil
}

func (c *CounterCursor) SaveCursor(ctx context.Context, block uint64) error {
	if err := c.counters.Set(ctx, c.name, int64(block)); err != nil {
		return fmt.Errorf("save chain cursor: %w", err)
	}
	return nil
}
