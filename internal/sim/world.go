package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// #region world

// World is the reference in-memory engine: a handful of zones, companions
// wandering between them, and rituals that fire on a cadence. It exists so
// the governor has a real collaborator in the binaries and in tests; nothing
// in the governor depends on its internals.
type World struct {
	cycle      int64
	zones      map[string]ZoneSpec
	links      map[string][]string
	companions []Companion
	rituals    []Ritual
	rng        *rand.Rand
	seed       int64
}

// Companion is one inhabitant of the world.
type Companion struct {
	Name string  `json:"name"`
	Zone string  `json:"zone"`
	Bond float64 `json:"bond"` // 0..1, decays while wandering, restored by rituals
}

// Ritual fires in its zone every Cadence cycles and restores the bonds of
// companions present.
type Ritual struct {
	Name    string `json:"name"`
	Zone    string `json:"zone"`
	Cadence int64  `json:"cadence"`
}

// #endregion world

// #region constructor

// NewWorld builds a World from a layout. The seed fixes the wander order so
// exported snapshots replay deterministically.
func NewWorld(layout Layout, companions []Companion, rituals []Ritual, seed int64) (*World, error) {
	if len(layout.Zones) == 0 {
		return nil, fmt.Errorf("world layout has no zones")
	}
	zones := make(map[string]ZoneSpec, len(layout.Zones))
	for _, z := range layout.Zones {
		zones[z.Name] = z
	}
	links := make(map[string][]string)
	for _, e := range layout.Edges {
		if _, ok := zones[e[0]]; !ok {
			return nil, fmt.Errorf("edge references unknown zone %q", e[0])
		}
		if _, ok := zones[e[1]]; !ok {
			return nil, fmt.Errorf("edge references unknown zone %q", e[1])
		}
		links[e[0]] = append(links[e[0]], e[1])
		links[e[1]] = append(links[e[1]], e[0])
	}
	for z := range links {
		sort.Strings(links[z])
	}
	for _, c := range companions {
		if _, ok := zones[c.Zone]; !ok {
			return nil, fmt.Errorf("companion %s starts in unknown zone %q", c.Name, c.Zone)
		}
	}
	return &World{
		zones:      zones,
		links:      links,
		companions: append([]Companion(nil), companions...),
		rituals:    append([]Ritual(nil), rituals...),
		rng:        rand.New(rand.NewSource(seed)),
		seed:       seed,
	}, nil
}

// DefaultLayout returns a small five-zone world with one restricted zone.
func DefaultLayout() Layout {
	return Layout{
		Zones: []ZoneSpec{
			{Name: "hearth"},
			{Name: "glade"},
			{Name: "market"},
			{Name: "shrine"},
			{Name: "undervault", Restricted: true},
		},
		Edges: [][2]string{
			{"hearth", "glade"},
			{"glade", "market"},
			{"market", "shrine"},
			{"shrine", "hearth"},
			{"shrine", "undervault"},
		},
	}
}

// DefaultCompanions returns the stock inhabitants for the default layout.
func DefaultCompanions() []Companion {
	return []Companion{
		{Name: "wren", Zone: "hearth", Bond: 0.9},
		{Name: "ashe", Zone: "glade", Bond: 0.8},
		{Name: "tamsin", Zone: "market", Bond: 0.85},
	}
}

// DefaultRituals returns the stock rituals for the default layout.
func DefaultRituals() []Ritual {
	return []Ritual{
		{Name: "emberlighting", Zone: "hearth", Cadence: 4},
		{Name: "tidechant", Zone: "shrine", Cadence: 6},
	}
}

// #endregion constructor

// #region step

// Step wanders each companion to a linked zone with decaying bond, then fires
// any rituals due this cycle. Drift is the mean absolute bond change; flux is
// the fraction of companions that moved.
func (w *World) Step(ctx context.Context) (StepReport, error) {
	if err := ctx.Err(); err != nil {
		return StepReport{}, err
	}
	w.cycle++
	report := StepReport{Cycle: w.cycle}

	var totalDelta float64
	moved := 0
	for i := range w.companions {
		c := &w.companions[i]
		before := c.Bond

		// Wander: half the time, move to a random linked zone.
		if neighbors := w.links[c.Zone]; len(neighbors) > 0 && w.rng.Intn(2) == 0 {
			next := neighbors[w.rng.Intn(len(neighbors))]
			report.ZoneEvents = append(report.ZoneEvents,
				ZoneEvent{Companion: c.Name, Zone: c.Zone, Kind: "leave"},
				ZoneEvent{Companion: c.Name, Zone: next, Kind: "enter"},
			)
			c.Zone = next
			moved++
		}

		// Bond decays each cycle
		c.Bond *= 0.97
		totalDelta += math.Abs(c.Bond - before)
	}

	for _, r := range w.rituals {
		if r.Cadence <= 0 || w.cycle%r.Cadence != 0 {
			continue
		}
		completed := false
		for i := range w.companions {
			c := &w.companions[i]
			if c.Zone != r.Zone {
				continue
			}
			before := c.Bond
			c.Bond = math.Min(1.0, c.Bond+0.15)
			totalDelta += math.Abs(c.Bond - before)
			completed = true
		}
		report.RitualEvents = append(report.RitualEvents, RitualEvent{
			Ritual:    r.Name,
			Zone:      r.Zone,
			Completed: completed,
		})
	}

	if n := len(w.companions); n > 0 {
		report.Drift = totalDelta / float64(n)
		report.Flux = float64(moved) / float64(n)
	}
	return report, nil
}

// #endregion step

// #region snapshot

// worldSnapshot is the serialized form of the full world state.
type worldSnapshot struct {
	Cycle      int64       `json:"cycle"`
	Seed       int64       `json:"seed"`
	Zones      []ZoneSpec  `json:"zones"`
	Edges      [][2]string `json:"edges"`
	Companions []Companion `json:"companions"`
	Rituals    []Ritual    `json:"rituals"`
}

// Export serializes the world to deterministic JSON (zones sorted by name).
func (w *World) Export() ([]byte, error) {
	snap := worldSnapshot{
		Cycle:      w.cycle,
		Seed:       w.seed,
		Companions: append([]Companion(nil), w.companions...),
		Rituals:    append([]Ritual(nil), w.rituals...),
	}
	for _, z := range w.zones {
		snap.Zones = append(snap.Zones, z)
	}
	sort.Slice(snap.Zones, func(i, j int) bool { return snap.Zones[i].Name < snap.Zones[j].Name })
	zoneNames := make([]string, 0, len(w.links))
	for z := range w.links {
		zoneNames = append(zoneNames, z)
	}
	sort.Strings(zoneNames)
	seen := make(map[string]bool)
	for _, z := range zoneNames {
		for _, n := range w.links[z] {
			a, b := z, n
			if b < a {
				a, b = b, a
			}
			key := a + "|" + b
			if seen[key] {
				continue
			}
			seen[key] = true
			snap.Edges = append(snap.Edges, [2]string{a, b})
		}
	}
	return json.Marshal(snap)
}

// Import parses a snapshot into a fresh world and only then swaps it in, so
// a corrupt snapshot leaves the live state untouched.
func (w *World) Import(data []byte) error {
	var snap worldSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse world snapshot: %w", err)
	}
	if len(snap.Zones) == 0 {
		return fmt.Errorf("world snapshot has no zones")
	}
	restored, err := NewWorld(Layout{Zones: snap.Zones, Edges: snap.Edges}, snap.Companions, snap.Rituals, snap.Seed)
	if err != nil {
		return fmt.Errorf("rebuild world: %w", err)
	}
	restored.cycle = snap.Cycle
	*w = *restored
	return nil
}

// Cycle returns the current cycle counter.
func (w *World) Cycle() int64 {
	return w.cycle
}

// Companions returns a copy of the current companion roster.
func (w *World) Companions() []Companion {
	return append([]Companion(nil), w.companions...)
}

// #endregion snapshot
