package metrics

import (
	"testing"

	"github.com/emberveil/governor/internal/sim"
)

func TestEvaluateAlwaysCarriesCoreScores(t *testing.T) {
	m := Evaluate(sim.StepReport{Cycle: 1})
	if _, ok := m[KeyContinuity]; !ok {
		t.Fatal("missing continuity_score")
	}
	if _, ok := m[KeyIdentity]; !ok {
		t.Fatal("missing identity_score")
	}
}

func TestContinuityFallsWithDrift(t *testing.T) {
	calm := Evaluate(sim.StepReport{Drift: 0.0})
	rough := Evaluate(sim.StepReport{Drift: 0.2})
	if rough.Continuity() >= calm.Continuity() {
		t.Fatalf("continuity should fall with drift: calm=%f rough=%f",
			calm.Continuity(), rough.Continuity())
	}
}

func TestScoresClamped(t *testing.T) {
	m := Evaluate(sim.StepReport{Drift: 10.0, Flux: 10.0})
	if m.Continuity() < 0 || m.Continuity() > 1 {
		t.Fatalf("continuity out of range: %f", m.Continuity())
	}
	if m.Identity() < 0 || m.Identity() > 1 {
		t.Fatalf("identity out of range: %f", m.Identity())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := Metrics{KeyContinuity: 0.5, KeyIdentity: 0.9}
	c := m.Clone()
	c[KeyContinuity] = 0.1
	if m.Continuity() != 0.5 {
		t.Fatalf("clone mutated original: %f", m.Continuity())
	}
}

func TestAuxiliaryMetrics(t *testing.T) {
	report := sim.StepReport{
		ZoneEvents: []sim.ZoneEvent{
			{Companion: "wren", Zone: "hearth", Kind: "leave"},
			{Companion: "wren", Zone: "glade", Kind: "enter"},
		},
		RitualEvents: []sim.RitualEvent{
			{Ritual: "emberlighting", Zone: "hearth", Completed: true},
			{Ritual: "tidechant", Zone: "shrine", Completed: false},
		},
	}
	m := Evaluate(report)
	if m["zone_crossings"] != 1 {
		t.Fatalf("expected 1 crossing, got %f", m["zone_crossings"])
	}
	if m["rituals_done"] != 1 {
		t.Fatalf("expected 1 ritual done, got %f", m["rituals_done"])
	}
}
