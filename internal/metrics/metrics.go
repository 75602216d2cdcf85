package metrics

import (
	"math"

	"github.com/emberveil/governor/internal/sim"
)

// #region metrics

// Well-known metric names. Every snapshot carries both.
const (
	KeyContinuity = "continuity_score"
	KeyIdentity   = "identity_score"
)

// Metrics is an immutable per-cycle snapshot of named scores. Producers build
// a fresh map every cycle and never mutate one after handing it off.
type Metrics map[string]float64

// Continuity returns the continuity score, 0 if absent.
func (m Metrics) Continuity() float64 {
	return m[KeyContinuity]
}

// Identity returns the identity score, 0 if absent.
func (m Metrics) Identity() float64 {
	return m[KeyIdentity]
}

// Clone returns an independent copy so a snapshot can be attached to events
// without sharing the producer's map.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion metrics

// #region evaluator

// Evaluator scores one step report. Pure: same report, same metrics.
type Evaluator func(report sim.StepReport) Metrics

// #endregion evaluator

// #region reference-evaluator

// Evaluate is the reference scorer. Continuity falls with drift, identity
// with flux, both clamped to [0, 1]. Ritual completions and zone churn are
// exposed as auxiliary metrics.
func Evaluate(report sim.StepReport) Metrics {
	ritualsDone := 0
	for _, r := range report.RitualEvents {
		if r.Completed {
			ritualsDone++
		}
	}
	return Metrics{
		KeyContinuity:    clamp(1.0 - 4.0*report.Drift),
		KeyIdentity:      clamp(1.0 - 0.5*report.Flux),
		"zone_crossings": float64(len(report.ZoneEvents)) / 2.0,
		"rituals_done":   float64(ritualsDone),
	}
}

// clamp bounds v to [0, 1].
func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// #endregion reference-evaluator
