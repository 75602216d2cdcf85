package sim

import "context"

// #region engine-interface

// Engine is the boundary to the simulation content. The governor advances it
// one step at a time and holds its exported state only as opaque bytes; it
// never looks inside a snapshot.
type Engine interface {
	// Step advances the simulation by exactly one cycle.
	Step(ctx context.Context) (StepReport, error)

	// Export serializes the full simulation state.
	Export() ([]byte, error)

	// Import replaces the full simulation state. Implementations must be
	// all-or-nothing: on error the live state is untouched.
	Import(data []byte) error
}

// #endregion engine-interface

// #region step-report

// StepReport is what one simulation step hands back for scoring and law
// enforcement. It describes the step, not the world.
type StepReport struct {
	Cycle        int64
	ZoneEvents   []ZoneEvent
	RitualEvents []RitualEvent
	Drift        float64 // aggregate companion drift this step
	Flux         float64 // aggregate identity flux this step
}

// ZoneEvent records a companion crossing a zone boundary.
type ZoneEvent struct {
	Companion string
	Zone      string
	Kind      string // "enter" | "leave"
}

// RitualEvent records a ritual firing in a zone.
type RitualEvent struct {
	Ritual    string
	Zone      string
	Completed bool
}

// #endregion step-report

// #region layout

// Layout describes the static world topology the reference engine runs on.
type Layout struct {
	Zones []ZoneSpec
	Edges [][2]string // undirected links between zone names
}

// ZoneSpec declares one zone of the world.
type ZoneSpec struct {
	Name       string
	Restricted bool
}

// RestrictedZones returns the set of restricted zone names.
func (l Layout) RestrictedZones() map[string]bool {
	out := make(map[string]bool)
	for _, z := range l.Zones {
		if z.Restricted {
			out[z.Name] = true
		}
	}
	return out
}

// #endregion layout
