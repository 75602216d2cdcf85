package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/emberveil/governor/internal/journal"
	"github.com/emberveil/governor/internal/policy"
	"github.com/emberveil/governor/internal/replay"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to governor.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	policyPath := flag.String("policy", "", "override policy config YAML")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/governor.db [--policy policy.yaml]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json [--policy policy.yaml]")
		os.Exit(2)
	}

	polCfg := policy.DefaultConfig()
	if *policyPath != "" {
		var err error
		polCfg, err = policy.LoadConfigFile(*policyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load policy config: %v\n", err)
			os.Exit(2)
		}
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, polCfg)
	} else {
		exitCode = runDBMode(*dbPath, polCfg)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string, polCfg policy.Config) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	threshold := f.BreachThreshold
	if threshold == 0 {
		threshold = polCfg.BreachThreshold
	}
	pols := policy.NewEngine(polCfg.Policies()...)

	results, summary := replay.Run(f.ToCycles(), pols, threshold)
	printResults(f.Description, results, summary)

	if len(f.Expected) > 0 {
		mismatches := replay.CheckExpected(results, f.Expected)
		if len(mismatches) > 0 {
			fmt.Printf("\nDivergences:\n")
			for _, m := range mismatches {
				fmt.Printf("  %s\n", m)
			}
			return 1
		}
		fmt.Printf("\nAll %d pinned outcomes reproduced.\n", len(f.Expected))
	}
	return 0
}

// #endregion fixture-mode

// #region db-mode

// runDBMode re-governs a live run's cycle log under the given policy
// configuration and reports where the outcomes diverge from what the
// recording governor decided.
func runDBMode(dbPath string, polCfg policy.Config) int {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer db.Close()

	jour, err := journal.New(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
		return 2
	}
	rows, err := jour.ListCycles(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list cycles: %v\n", err)
		return 2
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no cycle log rows found")
		return 2
	}

	pols := policy.NewEngine(polCfg.Policies()...)
	results, summary := replay.Run(replay.CyclesFromJournal(rows), pols, polCfg.BreachThreshold)
	printResults(fmt.Sprintf("cycle log from %s", dbPath), results, summary)

	recorded := make(map[int64]string, len(rows))
	for _, r := range rows {
		recorded[r.Cycle] = r.Outcome
	}
	diverge := 0
	fmt.Printf("\n%-8s| %-10s| %-10s| %s\n", "Cycle", "Recorded", "Replayed", "Match")
	fmt.Printf("%s\n", strings.Repeat("-", 44))
	for _, r := range results {
		rec := recorded[r.Cycle]
		match := "OK"
		if rec != r.Outcome {
			match = "DIFF"
			diverge++
		}
		fmt.Printf("%-8d| %-10s| %-10s| %s\n", r.Cycle, rec, r.Outcome, match)
	}
	fmt.Printf("\nSummary: %d cycles, %d diverge\n", len(results), diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

// #endregion db-mode

// #region output

func printResults(description string, results []replay.Result, summary replay.Summary) {
	if description != "" {
		fmt.Printf("Replaying: %s\n\n", description)
	}
	fmt.Printf("%-8s  %-10s  %-8s  %s\n", "Cycle", "Outcome", "Breach", "Policies")
	for _, r := range results {
		breach := "-"
		if r.Breach {
			breach = "BREACH"
		}
		pols := "-"
		if len(r.Violations) > 0 {
			pols = strings.Join(r.Violations, ",")
		}
		fmt.Printf("%-8d  %-10s  %-8s  %s\n", r.Cycle, r.Outcome, breach, pols)
	}
	fmt.Printf("\n%d cycles: %d warn, %d pause, %d shutdown, %d breaches",
		summary.TotalCycles, summary.Warns, summary.Pauses, summary.Shutdowns, summary.Breaches)
	if summary.HaltedAt > 0 {
		fmt.Printf(" (halted at cycle %d)", summary.HaltedAt)
	}
	fmt.Println()
}

// #endregion output
