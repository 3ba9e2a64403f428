package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate/internal/mint/backend"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/pool"
	"mintgate/internal/platform/config"
)

// useMemoryDeps points every subcommand at one shared set of in-memory stores.
func useMemoryDeps(t *testing.T) *backend.Stores {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{Mint: config.Mint{CategoryCapacities: []int{5, 5}}}
	stores, err := backend.Open(context.Background(), cfg, log)
	require.NoError(t, err)
	layout, err := pool.NewLayout(cfg.Mint.CategoryCapacities)
	require.NoError(t, err)

	prev := openDeps
	openDeps = func(context.Context, io.Writer) (*deps, error) {
		return &deps{layout: layout, stores: stores, logger: log}, nil
	}
	t.Cleanup(func() { openDeps = prev })
	return stores
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInitBuildsEveryCategory(t *testing.T) {
	stores := useMemoryDeps(t)

	code, out, errOut := runCLI("init", "-seed", "7")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Inserted 10 identifiers")

	n, err := stores.Pool.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	code, _, errOut = runCLI("init")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already holds 10 entries")
}

func TestRestoreThenRebuildExcludesRecordedIdentifiers(t *testing.T) {
	stores := useMemoryDeps(t)
	ctx := context.Background()

	csvPath := filepath.Join(t.TempDir(), "minted.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("tokenId,wallet,categoryId\n2,0x0000000000000000000000000000000000000abc,0\n7,0x0000000000000000000000000000000000000def,1\n"), 0o600))

	code, out, errOut := runCLI("restore-records", "-csv", csvPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Restored 2 records")

	rec, err := stores.Records.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmed, rec.State)

	code, out, errOut = runCLI("rebuild")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Inserted 8 identifiers")

	// Every remaining identifier of category 0 is allocatable and none is 2.
	layout, err := pool.NewLayout([]int{5, 5})
	require.NoError(t, err)
	alloc := pool.NewAllocator(layout, stores.Counters, stores.Pool)
	seen := map[int64]bool{}
	for range 4 {
		id, err := alloc.Allocate(ctx, 0)
		require.NoError(t, err)
		seen[id] = true
	}
	assert.Len(t, seen, 4)
	assert.False(t, seen[2])
	_, err = alloc.Allocate(ctx, 0)
	assert.ErrorIs(t, err, models.ErrCategoryExhausted)

	code, out, _ = runCLI("status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Pool entries: 8")
}

func TestRestoreRejectsUnknownCategory(t *testing.T) {
	useMemoryDeps(t)
	csvPath := filepath.Join(t.TempDir(), "minted.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,0x0000000000000000000000000000000000000abc,9\n"), 0o600))

	code, _, errOut := runCLI("restore-records", "-csv", csvPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown category 9")
}

func TestUnknownSubcommand(t *testing.T) {
	code, _, errOut := runCLI("shuffle")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Unknown subcommand: shuffle")

	code, _, errOut = runCLI()
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Usage: poolctl")
}
