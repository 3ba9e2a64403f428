package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"mintgate/internal/mint/pool"
)

func builderOptions(d *deps, seed uint64) []pool.BuilderOption {
	opts := []pool.BuilderOption{pool.WithBuilderLogger(d.logger)}
	if seed != 0 {
		opts = append(opts, pool.WithSeed(seed, seed))
	}
	return opts
}

func runInitCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seed := fs.Uint64("seed", 0, "shuffle seed for a reproducible pool (0 = random)")
	force := fs.Bool("force", false, "overwrite a pool that already has entries")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withDeps(ctx, stderr, func(d *deps) int {
		n, err := d.stores.Pool.Count(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: count pool: %v\n", err)
			return 1
		}
		if n > 0 && !*force {
			fmt.Fprintf(stderr, "Pool already holds %d entries; use rebuild, or init -force to discard allocations\n", n)
			return 1
		}
		report, err := pool.NewBuilder(d.layout, d.stores.Pool, d.stores.Counters, builderOptions(d, *seed)...).Build(ctx, nil)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		printReport(stdout, report)
		return 0
	})
}

func runRebuildCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seed := fs.Uint64("seed", 0, "shuffle seed for a reproducible pool (0 = random)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withDeps(ctx, stderr, func(d *deps) int {
		ids, err := d.stores.Records.ListIDs(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: list records: %v\n", err)
			return 1
		}
		// Pending identifiers are excluded too; their owners may still mint them.
		exclude := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			exclude[id] = struct{}{}
		}
		report, err := pool.NewBuilder(d.layout, d.stores.Pool, d.stores.Counters, builderOptions(d, *seed)...).Build(ctx, exclude)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		printReport(stdout, report)
		return 0
	})
}

func runStatusCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withDeps(ctx, stderr, func(d *deps) int {
		status, err := pool.NewAllocator(d.layout, d.stores.Counters, d.stores.Pool).Status(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		n, err := d.stores.Pool.Count(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: count pool: %v\n", err)
			return 1
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tSTART\tCAPACITY\tALLOCATED\tREMAINING")
		for _, s := range status {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", s.Category, s.Start, s.Capacity, s.Allocated, s.Remaining)
		}
		_ = tw.Flush()
		fmt.Fprintf(stdout, "Pool entries: %d\n", n)
		return 0
	})
}

func printReport(w io.Writer, report pool.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTART\tCAPACITY\tEXCLUDED\tINSERTED")
	for _, c := range report.Categories {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", c.Category, c.Start, c.Capacity, c.Excluded, c.Inserted)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Inserted %d identifiers\n", report.Inserted)
}
