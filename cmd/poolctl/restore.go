package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"mintgate/internal/mint/restore"
)

func runRestoreCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("restore-records", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("csv", os.Getenv("MINTED_CSV_PATH"), "exported tokenId,wallet,category CSV")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *path == "" {
		fmt.Fprintln(stderr, "Error: -csv (or MINTED_CSV_PATH) is required")
		return 1
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer f.Close()
	rows, err := restore.ParseCSV(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Loaded %d minted records from %s\n", len(rows), *path)

	return withDeps(ctx, stderr, func(d *deps) int {
		for _, row := range rows {
			if !d.layout.Valid(row.Category) {
				fmt.Fprintf(stderr, "Error: token %d has unknown category %d\n", row.TokenID, row.Category)
				return 1
			}
		}
		n, err := restore.Apply(ctx, d.stores.Records, rows, time.Now().Unix())
		if err != nil {
			fmt.Fprintf(stderr, "Error after %d records: %v\n", n, err)
			return 1
		}
		fmt.Fprintf(stdout, "Restored %d records\n", n)
		return 0
	})
}
