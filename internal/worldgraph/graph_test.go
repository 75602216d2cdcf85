package worldgraph

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/emberveil/governor/internal/sim"
	_ "modernc.org/sqlite"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSeedAndLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	layout := sim.DefaultLayout()

	if err := s.Seed(layout); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	loaded, err := s.LoadLayout()
	if err != nil {
		t.Fatalf("LoadLayout: %v", err)
	}
	if len(loaded.Zones) != len(layout.Zones) {
		t.Fatalf("expected %d zones, got %d", len(layout.Zones), len(loaded.Zones))
	}
	if len(loaded.Edges) != len(layout.Edges) {
		t.Fatalf("expected %d edges, got %d", len(layout.Edges), len(loaded.Edges))
	}
	if !loaded.RestrictedZones()["undervault"] {
		t.Fatal("restricted flag lost on round trip")
	}
}

func TestDuplicateEdgeIgnored(t *testing.T) {
	s := tempStore(t)
	if err := s.AddZone("hearth", false); err != nil {
		t.Fatalf("AddZone: %v", err)
	}
	if err := s.AddZone("glade", false); err != nil {
		t.Fatalf("AddZone: %v", err)
	}

	// Same undirected edge added in both directions.
	if err := s.AddEdge("hearth", "glade"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := s.AddEdge("glade", "hearth"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	layout, err := s.LoadLayout()
	if err != nil {
		t.Fatalf("LoadLayout: %v", err)
	}
	if len(layout.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(layout.Edges))
	}
}
