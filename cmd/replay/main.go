package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the audit history DB (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	last := flag.Int("last", 500, "DB mode: number of most recent incidents to replay")
	verbose := flag.Bool("v", false, "print the final Q-table rows")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [-v]")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/history.db [--last N] [-v]")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, *verbose)
	} else {
		exitCode = runDBMode(*dbPath, *last, *verbose)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string, verbose bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}
	return runAndCheck(f, verbose)
}

// #endregion fixture-mode

// #region db-mode

func runDBMode(dbPath string, last int, verbose bool) int {
	ctx := context.Background()
	store, err := history.NewStore(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	incs, err := store.RecentIncidents(ctx, last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	f, err := replay.FromHistory(fmt.Sprintf("replay of %d incident(s) from %s", len(incs), dbPath), incs,
		replay.FixtureConfig{Mode: "single"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	fmt.Printf("%s\n\n", f.Description)
	return runAndCheck(f, verbose)
}

// #endregion db-mode

// #region output

func runAndCheck(f *replay.Fixture, verbose bool) int {
	res, err := f.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	sum := replay.Summarize(res)
	fmt.Printf("updates=%d  positive=%d  negative=%d  mean_reward=%+.3f  states=%d\n",
		sum.Updates, sum.Positive, sum.Negative, sum.MeanReward, sum.StatesTried)
	if len(sum.Selections) > 0 {
		keys := make([]policy.Selection, 0, len(sum.Selections))
		for k := range sum.Selections {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		fmt.Print("selections:")
		for _, k := range keys {
			fmt.Printf("  %s=%d", k, sum.Selections[k])
		}
		fmt.Println()
	}

	if verbose {
		fmt.Println()
		for _, s := range res.Table.States() {
			fmt.Printf("%-26s %v  best=%s\n", s, res.Table.Row(s), res.Best[s])
		}
	}

	mismatches := f.Check(res)
	fmt.Println()
	for _, exp := range f.Expected {
		mark := "ok  "
		if string(res.Best[exp.State]) != exp.Action {
			mark = "FAIL"
		}
		fmt.Printf("%s %-26s expected=%s got=%s\n", mark, exp.State, exp.Action, res.Best[exp.State])
	}
	if len(mismatches) > 0 {
		fmt.Printf("\n%d of %d expectation(s) failed\n", len(mismatches), len(f.Expected))
		return 1
	}
	fmt.Printf("\nall %d expectation(s) met\n", len(f.Expected))
	return 0
}

// #endregion output
