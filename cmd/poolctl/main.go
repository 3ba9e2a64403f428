// Command poolctl builds and inspects the identifier pool and restores mint
// records from an export. It reads the same environment as the server.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mintgate/internal/mint/backend"
	"mintgate/internal/mint/pool"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// deps is what every subcommand works on.
type deps struct {
	layout pool.Layout
	stores *backend.Stores
	logger *slog.Logger
}

// openDeps is replaced in tests.
var openDeps = func(ctx context.Context, stderr io.Writer) (*deps, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	if cfg.InMemory() {
		return nil, fmt.Errorf("poolctl needs DATABASE_URL or REDIS_URL; the in-memory pool is built by the server at startup")
	}
	layout, err := pool.NewLayout(cfg.Mint.CategoryCapacities)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(stderr, "poolctl", cfg.Server.Environment, cfg.Server.LogLevel)
	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &deps{layout: layout, stores: stores, logger: log}, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "init":
		return runInitCommand(ctx, args[1:], stdout, stderr)
	case "rebuild":
		return runRebuildCommand(ctx, args[1:], stdout, stderr)
	case "restore-records":
		return runRestoreCommand(ctx, args[1:], stdout, stderr)
	case "status":
		return runStatusCommand(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "Usage: poolctl <subcommand> [flags]")
	fmt.Fprintln(buf, "Subcommands:")
	fmt.Fprintln(buf, "  init              Shuffle and write every category's identifiers, resetting counters")
	fmt.Fprintln(buf, "  rebuild           Rewrite the pool without identifiers that already have a record")
	fmt.Fprintln(buf, "  restore-records   Recreate confirmed records from a tokenId,wallet,category CSV")
	fmt.Fprintln(buf, "  status            Show allocated and remaining identifiers per category")
	return buf.String()
}

func withDeps(ctx context.Context, stderr io.Writer, fn func(*deps) int) int {
	d, err := openDeps(ctx, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := d.stores.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: closing stores: %v\n", err)
		}
	}()
	return fn(d)
}
