package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the audit history DB")
	last := flag.Int("last", 50, "number of most recent incidents to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	mode := flag.String("mode", "single", "update rule recorded in the fixture: single|chained")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/history.db --out path/to/fixture.json [--last N] [--mode single|chained]")
		os.Exit(2)
	}

	if err := run(*dbPath, *last, *outPath, *mode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath string, last int, outPath, mode string) error {
	ctx := context.Background()
	store, err := history.NewStore(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	incs, err := store.RecentIncidents(ctx, last)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d incident(s)\n", len(incs))

	desc := fmt.Sprintf("Exported from %s (last %d incidents)", dbPath, len(incs))
	f, err := replay.FromHistory(desc, incs, replay.FixtureConfig{Mode: mode})
	if err != nil {
		return err
	}
	if err := f.Save(outPath); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("Wrote fixture to %s (%d incidents, %d expectations)\n", outPath, len(f.Incidents), len(f.Expected))
	return nil
}

// #endregion extract
