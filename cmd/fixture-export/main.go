package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/emberveil/governor/internal/journal"
	"github.com/emberveil/governor/internal/policy"
	"github.com/emberveil/governor/internal/replay"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to governor.db")
	last := flag.Int("last", 16, "number of most recent cycle log rows to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	description := flag.String("description", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/governor.db --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *last, *outPath, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath string, last int, outPath, description string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	jour, err := journal.New(db)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	rows, err := jour.ListCycles(0)
	if err != nil {
		return fmt.Errorf("list cycles: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no cycle log rows in %s", dbPath)
	}
	if last > 0 && len(rows) > last {
		rows = rows[len(rows)-last:]
	}

	if description == "" {
		description = fmt.Sprintf("last %d cycles exported from %s", len(rows), dbPath)
	}
	fixture := replay.Fixture{
		Description:     description,
		BreachThreshold: policy.DefaultConfig().BreachThreshold,
	}
	for _, row := range rows {
		if row.Metrics == nil {
			continue
		}
		fixture.Cycles = append(fixture.Cycles, replay.FixtureCycle{
			Cycle:   row.Cycle,
			Metrics: row.Metrics,
		})
		// The recorded outcome becomes the pinned expectation, so replaying
		// under the same policy config must reproduce it.
		fixture.Expected = append(fixture.Expected, replay.FixtureExpectation{
			Cycle:   row.Cycle,
			Outcome: row.Outcome,
		})
	}
	if len(fixture.Cycles) == 0 {
		return fmt.Errorf("no exportable cycles (all rows lacked metrics)")
	}

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	data = append(data, '\n')

	// Round trip through the schema before writing, so an exported fixture
	// is always loadable.
	if err := replay.ValidateFixtureBytes(data); err != nil {
		return fmt.Errorf("exported fixture invalid: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	fmt.Printf("Exported %d cycles to %s\n", len(fixture.Cycles), outPath)
	return nil
}

// #endregion export
