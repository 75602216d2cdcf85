package replay

import (
	"fmt"

	"github.com/emberveil/governor/internal/journal"
	"github.com/emberveil/governor/internal/metrics"
	"github.com/emberveil/governor/internal/policy"
)

// #region types

// Cycle is one recorded metrics snapshot to re-govern.
type Cycle struct {
	Cycle   int64
	Metrics metrics.Metrics
}

// Result captures the outcome of re-governing one recorded cycle.
type Result struct {
	Cycle      int64
	Breach     bool
	Violations []string
	Severity   policy.Severity
	Outcome    string // "ok" | "warn" | "pause" | "shutdown"
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalCycles int
	Breaches    int
	Warns       int
	Pauses      int
	Shutdowns   int

	// HaltedAt is the cycle where a shutdown-severity violation stopped the
	// replay, 0 if the run completed.
	HaltedAt int64
}

// #endregion types

// #region replay

// Run re-governs recorded cycles through a policy engine: breach check, then
// policy evaluation, then the strictest-outcome ladder per cycle. A
// shutdown-severity violation halts the run the way it would have terminated
// the live governor; later cycles are not evaluated. Operates entirely
// in-memory.
func Run(cycles []Cycle, pols *policy.Engine, breachThreshold float64) ([]Result, Summary) {
	if pols == nil {
		pols = policy.NewEngine()
	}
	results := make([]Result, 0, len(cycles))
	summary := Summary{}

	for _, c := range cycles {
		r := Result{Cycle: c.Cycle, Outcome: "ok"}
		if c.Metrics.Continuity() < breachThreshold {
			r.Breach = true
			summary.Breaches++
		}
		violations := pols.Evaluate(c.Metrics)
		for _, v := range violations {
			r.Violations = append(r.Violations, v.PolicyName)
		}
		r.Severity = policy.Strictest(violations)
		switch r.Severity {
		case policy.SeverityShutdown:
			r.Outcome = "shutdown"
			summary.Shutdowns++
		case policy.SeverityPause:
			r.Outcome = "pause"
			summary.Pauses++
		case policy.SeverityWarn:
			r.Outcome = "warn"
			summary.Warns++
		}
		results = append(results, r)
		summary.TotalCycles++
		if r.Outcome == "shutdown" {
			summary.HaltedAt = c.Cycle
			break
		}
	}
	return results, summary
}

// CheckExpected compares replay results against a fixture's pinned outcomes
// and returns one message per divergence.
func CheckExpected(results []Result, expected []FixtureExpectation) []string {
	byCycle := make(map[int64]Result, len(results))
	for _, r := range results {
		byCycle[r.Cycle] = r
	}
	var mismatches []string
	for _, e := range expected {
		r, ok := byCycle[e.Cycle]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("cycle %d: expected %s, not replayed", e.Cycle, e.Outcome))
			continue
		}
		if r.Outcome != e.Outcome {
			mismatches = append(mismatches, fmt.Sprintf("cycle %d: got %s, want %s", e.Cycle, r.Outcome, e.Outcome))
		}
	}
	return mismatches
}

// CyclesFromJournal converts journal rows to replay input, so a live run's
// cycle log can be re-governed under a different policy configuration.
func CyclesFromJournal(rows []journal.CycleRecord) []Cycle {
	out := make([]Cycle, len(rows))
	for i, row := range rows {
		m := row.Metrics
		if m == nil {
			m = metrics.Metrics{}
		}
		out[i] = Cycle{Cycle: row.Cycle, Metrics: m.Clone()}
	}
	return out
}

// #endregion replay
