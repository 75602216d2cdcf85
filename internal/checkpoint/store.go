package checkpoint

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	path           TEXT PRIMARY KEY,
	target_path    TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	kind           TEXT NOT NULL,
	label          TEXT,
	continuity     REAL,
	size_bytes     INTEGER NOT NULL,
	state_version  INTEGER NOT NULL UNIQUE,
	checksum       TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store persists opaque simulation snapshots as files under dir and the
// catalog of Records in SQLite. One writer (the governor); catalog readers
// only ever observe fully committed rows.
type Store struct {
	db  *sql.DB
	dir string
}

// #endregion store-struct

// #region constructor

// NewStore opens the catalog database, runs migrations, and ensures the
// snapshot directory exists.
func NewStore(dir, dbPath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Store{db: db, dir: dir}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (journal,
// world topology) sharing the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region meta

// metaRecord is the on-disk sidecar metadata shape. Field set and names are
// part of the compatibility contract; optional fields are omitted when unset.
type metaRecord struct {
	Path         string   `json:"path"`
	TargetPath   string   `json:"target_path"`
	CreatedAt    string   `json:"created_at"` // ISO-8601
	Kind         Kind     `json:"kind"`
	Label        string   `json:"label,omitempty"`
	Continuity   *float64 `json:"continuity,omitempty"`
	SizeBytes    int64    `json:"size_bytes,omitempty"`
	StateVersion int64    `json:"state_version,omitempty"`
}

// #endregion meta

// #region save

// Save persists one snapshot: write-then-rename for the snapshot file and
// its metadata sidecar, then a catalog row carrying the next monotonic
// state_version. The record is never visible in the catalog half-written;
// "latest" therefore always means the most recent successful Save.
func (s *Store) Save(kind Kind, label string, snapshot []byte, continuity *float64) (Record, error) {
	// RefLatest is a virtual reference; a record labeled with it could never
	// be resolved by that label.
	if label == RefLatest {
		return Record{}, fmt.Errorf("%w: %q is a reserved reference", ErrInvalidReference, label)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var version int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(state_version), 0) + 1 FROM checkpoints`,
	).Scan(&version); err != nil {
		return Record{}, fmt.Errorf("next state version: %w", err)
	}

	slug := slugify(label)
	if slug == "" {
		slug = string(kind)
	}
	base := fmt.Sprintf("ckpt-%06d-%s.snap", version, slug)
	target := filepath.Join(s.dir, base)
	sum := sha256.Sum256(snapshot)

	rec := Record{
		Path:         base,
		TargetPath:   target,
		CreatedAt:    time.Now().UTC(),
		Kind:         kind,
		Label:        label,
		Continuity:   continuity,
		SizeBytes:    int64(len(snapshot)),
		StateVersion: version,
		Checksum:     hex.EncodeToString(sum[:]),
	}

	if err := writeAtomic(target, snapshot); err != nil {
		return Record{}, fmt.Errorf("write snapshot: %w", err)
	}
	// Files renamed into place before the catalog row lands are orphans if
	// the transaction fails; remove them so the directory mirrors the catalog.
	committed := false
	defer func() {
		if !committed {
			os.Remove(target)
			os.Remove(target + ".meta.json")
		}
	}()
	meta := metaRecord{
		Path:         rec.Path,
		TargetPath:   rec.TargetPath,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339Nano),
		Kind:         rec.Kind,
		Label:        rec.Label,
		Continuity:   rec.Continuity,
		SizeBytes:    rec.SizeBytes,
		StateVersion: rec.StateVersion,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Record{}, fmt.Errorf("marshal meta: %w", err)
	}
	if err := writeAtomic(target+".meta.json", metaJSON); err != nil {
		return Record{}, fmt.Errorf("write meta: %w", err)
	}

	var continuityPtr interface{}
	if rec.Continuity != nil {
		continuityPtr = *rec.Continuity
	}
	var labelPtr interface{}
	if rec.Label != "" {
		labelPtr = rec.Label
	}
	_, err = tx.Exec(
		`INSERT INTO checkpoints (path, target_path, created_at, kind, label, continuity, size_bytes, state_version, checksum)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.TargetPath, rec.CreatedAt.Format(time.RFC3339Nano), string(rec.Kind),
		labelPtr, continuityPtr, rec.SizeBytes, rec.StateVersion, rec.Checksum,
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert catalog row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit catalog row: %w", err)
	}
	committed = true
	return rec, nil
}

// writeAtomic writes data to a temp file in the same directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// #endregion save

// #region list

// List returns every catalog record in state_version order. Presentation
// ordering (created_at descending) is a read-side concern.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT path, target_path, created_at, kind, label, continuity, size_bytes, state_version, checksum
		 FROM checkpoints ORDER BY state_version ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var createdStr, kindStr string
	var label sql.NullString
	var continuity sql.NullFloat64

	err := row.Scan(&rec.Path, &rec.TargetPath, &createdStr, &kindStr,
		&label, &continuity, &rec.SizeBytes, &rec.StateVersion, &rec.Checksum)
	if err != nil {
		return Record{}, fmt.Errorf("scan checkpoint row: %w", err)
	}
	rec.Kind = Kind(kindStr)
	if label.Valid {
		rec.Label = label.String
	}
	if continuity.Valid {
		v := continuity.Float64
		rec.Continuity = &v
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion list

// #region resolve

// Resolve maps a caller-supplied reference to a catalog record. "latest"
// means the highest state_version; otherwise the reference is matched as an
// exact path, then as a label (most recent wins). The reference is safety
// validated before any lookup.
func (s *Store) Resolve(ref string) (Record, error) {
	if err := ValidateRef(ref); err != nil {
		return Record{}, err
	}

	var row *sql.Row
	const cols = `SELECT path, target_path, created_at, kind, label, continuity, size_bytes, state_version, checksum FROM checkpoints`
	if ref == RefLatest {
		row = s.db.QueryRow(cols + ` ORDER BY state_version DESC LIMIT 1`)
	} else {
		row = s.db.QueryRow(cols+` WHERE path = ? OR label = ? ORDER BY state_version DESC LIMIT 1`, ref, ref)
	}

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
		}
		return Record{}, err
	}
	return rec, nil
}

// #endregion resolve

// #region restore

// Restore resolves a reference and reads its snapshot back, verifying the
// stored checksum. Nothing outside the store is touched on any failure path.
func (s *Store) Restore(ref string) (Record, []byte, error) {
	rec, err := s.Resolve(ref)
	if err != nil {
		return Record{}, nil, err
	}
	data, err := os.ReadFile(rec.TargetPath)
	if err != nil {
		return Record{}, nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, rec.Path, err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != rec.Checksum {
		return Record{}, nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorrupt, rec.Path)
	}
	return rec, data, nil
}

// #endregion restore
