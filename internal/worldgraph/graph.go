package worldgraph

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/emberveil/governor/internal/sim"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS zones (
    name        TEXT PRIMARY KEY,
    restricted  INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_edges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source      TEXT NOT NULL,
    target      TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    UNIQUE(source, target),
    FOREIGN KEY (source) REFERENCES zones(name),
    FOREIGN KEY (target) REFERENCES zones(name)
);
CREATE INDEX IF NOT EXISTS idx_zone_edges_source ON zone_edges(source);
`

// #endregion schema

// #region store

// Store manages the zone topology tables. It shares the catalog database.
type Store struct {
	db *sql.DB
}

// NewStore creates the topology tables if needed and returns a Store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("worldgraph schema: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region add

// AddZone inserts a zone. Re-adding an existing zone is ignored.
func (s *Store) AddZone(name string, restricted bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	r := 0
	if restricted {
		r = 1
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO zones (name, restricted, created_at) VALUES (?, ?, ?)`,
		name, r, now,
	)
	if err != nil {
		return fmt.Errorf("add zone %s: %w", name, err)
	}
	return nil
}

// AddEdge links two zones. Stored once in canonical (lexicographic) order so
// the undirected edge cannot be duplicated.
func (s *Store) AddEdge(a, b string) error {
	if b < a {
		a, b = b, a
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO zone_edges (source, target, created_at) VALUES (?, ?, ?)`,
		a, b, now,
	)
	if err != nil {
		return fmt.Errorf("add edge %s-%s: %w", a, b, err)
	}
	return nil
}

// #endregion add

// #region load

// LoadLayout reads the full topology back as an engine layout, zones and
// edges each in insertion-stable order.
func (s *Store) LoadLayout() (sim.Layout, error) {
	var layout sim.Layout

	rows, err := s.db.Query(`SELECT name, restricted FROM zones ORDER BY name ASC`)
	if err != nil {
		return sim.Layout{}, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var z sim.ZoneSpec
		var restricted int
		if err := rows.Scan(&z.Name, &restricted); err != nil {
			return sim.Layout{}, fmt.Errorf("scan zone: %w", err)
		}
		z.Restricted = restricted != 0
		layout.Zones = append(layout.Zones, z)
	}
	if err := rows.Err(); err != nil {
		return sim.Layout{}, err
	}

	edgeRows, err := s.db.Query(`SELECT source, target FROM zone_edges ORDER BY id ASC`)
	if err != nil {
		return sim.Layout{}, fmt.Errorf("list edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var a, b string
		if err := edgeRows.Scan(&a, &b); err != nil {
			return sim.Layout{}, fmt.Errorf("scan edge: %w", err)
		}
		layout.Edges = append(layout.Edges, [2]string{a, b})
	}
	return layout, edgeRows.Err()
}

// #endregion load

// #region seed

// Seed writes a full layout into the store.
func (s *Store) Seed(layout sim.Layout) error {
	for _, z := range layout.Zones {
		if err := s.AddZone(z.Name, z.Restricted); err != nil {
			return err
		}
	}
	for _, e := range layout.Edges {
		if err := s.AddEdge(e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

// #endregion seed
