package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/emberveil/governor/internal/checkpoint"
	"github.com/emberveil/governor/internal/journal"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to governor.db")
	ckptDir := flag.String("checkpoints", "checkpoints", "checkpoint directory")
	events := flag.Int("events", 0, "show N most recent journal events")
	cycles := flag.Int("cycles", 0, "show N most recent cycle log rows")
	ref := flag.String("ref", "", "show single checkpoint detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/governor.db [--checkpoints dir] [--events N] [--cycles N] [--ref id] [--json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*ckptDir, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *ref != "":
		err = runDetailMode(store, *ref, *jsonOut)
	case *events > 0:
		err = runEventsMode(store, *events, *jsonOut)
	case *cycles > 0:
		err = runCyclesMode(store, *cycles, *jsonOut)
	default:
		err = runCatalogMode(store, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region catalog-mode

type catalogRow struct {
	StateVersion int64    `json:"state_version"`
	Path         string   `json:"path"`
	Kind         string   `json:"kind"`
	Label        string   `json:"label,omitempty"`
	Continuity   *float64 `json:"continuity,omitempty"`
	SizeBytes    int64    `json:"size_bytes"`
	CreatedAt    string   `json:"created_at"`
}

func toCatalogRow(r checkpoint.Record) catalogRow {
	return catalogRow{
		StateVersion: r.StateVersion,
		Path:         r.Path,
		Kind:         string(r.Kind),
		Label:        r.Label,
		Continuity:   r.Continuity,
		SizeBytes:    r.SizeBytes,
		CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func runCatalogMode(store *checkpoint.Store, jsonOut bool) error {
	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no checkpoints found")
		return nil
	}

	rows := make([]catalogRow, len(records))
	for i, r := range records {
		rows[i] = toCatalogRow(r)
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-6s  %-28s  %-8s  %-16s  %10s  %8s  %s\n",
		"Ver", "Path", "Kind", "Label", "Continuity", "Size", "Time")
	for _, r := range rows {
		label := r.Label
		if label == "" {
			label = "—"
		}
		cont := "—"
		if r.Continuity != nil {
			cont = fmt.Sprintf("%.4f", *r.Continuity)
		}
		fmt.Printf("%-6d  %-28s  %-8s  %-16s  %10s  %8d  %s\n",
			r.StateVersion, r.Path, r.Kind, label, cont, r.SizeBytes, r.CreatedAt)
	}
	return nil
}

// #endregion catalog-mode

// #region detail-mode

func runDetailMode(store *checkpoint.Store, ref string, jsonOut bool) error {
	rec, err := store.Resolve(ref)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(toCatalogRow(rec))
	}
	fmt.Printf("Version:    %d\n", rec.StateVersion)
	fmt.Printf("Path:       %s\n", rec.Path)
	fmt.Printf("File:       %s\n", rec.TargetPath)
	fmt.Printf("Kind:       %s\n", rec.Kind)
	if rec.Label != "" {
		fmt.Printf("Label:      %s\n", rec.Label)
	}
	if rec.Continuity != nil {
		fmt.Printf("Continuity: %.4f\n", *rec.Continuity)
	}
	fmt.Printf("Size:       %d bytes\n", rec.SizeBytes)
	fmt.Printf("Checksum:   %s\n", rec.Checksum)
	fmt.Printf("Created:    %s\n", rec.CreatedAt.Format("2006-01-02T15:04:05Z"))
	return nil
}

// #endregion detail-mode

// #region journal-modes

func runEventsMode(store *checkpoint.Store, limit int, jsonOut bool) error {
	jour, err := journal.New(store.DB())
	if err != nil {
		return err
	}
	rows, err := jour.ListEvents(limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rows)
	}
	for _, r := range rows {
		fmt.Printf("#%-5d %-22s %s %s\n",
			r.Seq, r.Kind, r.CreatedAt.Format("2006-01-02T15:04:05Z"), r.PayloadJSON)
	}
	return nil
}

func runCyclesMode(store *checkpoint.Store, limit int, jsonOut bool) error {
	jour, err := journal.New(store.DB())
	if err != nil {
		return err
	}
	rows, err := jour.ListCycles(limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-8s  %-10s  %10s  %10s  %s\n", "Cycle", "Outcome", "Continuity", "Identity", "Reason")
	for _, r := range rows {
		reason := r.Reason
		if reason == "" {
			reason = "—"
		}
		fmt.Printf("%-8d  %-10s  %10.4f  %10.4f  %s\n",
			r.Cycle, r.Outcome, r.Metrics.Continuity(), r.Metrics.Identity(), reason)
	}
	return nil
}

// #endregion journal-modes

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
