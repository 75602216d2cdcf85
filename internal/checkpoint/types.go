package checkpoint

import (
	"errors"
	"time"
)

// #region kind

// Kind classifies why a checkpoint exists.
type Kind string

const (
	KindManual   Kind = "manual"
	KindAuto     Kind = "auto"
	KindRollback Kind = "rollback"
)

// RefLatest resolves to the most recently successfully written checkpoint.
const RefLatest = "latest"

// GenesisLabel marks the distinguished known-good checkpoint that reset
// rolls back to.
const GenesisLabel = "genesis"

// #endregion kind

// #region record

// Record is one row of the checkpoint catalog. Identity is Path; records are
// immutable once written and never deleted by the store, so the catalog reads
// as an append-only audit log.
type Record struct {
	Path         string    // snapshot file basename, unique
	TargetPath   string    // absolute path of the snapshot file
	CreatedAt    time.Time
	Kind         Kind
	Label        string   // optional
	Continuity   *float64 // optional, continuity score at save time
	SizeBytes    int64
	StateVersion int64 // monotonic per checkpoint
	Checksum     string
}

// #endregion record

// #region errors

var (
	// ErrInvalidReference marks a caller-supplied checkpoint reference that
	// failed safety validation; storage is never touched.
	ErrInvalidReference = errors.New("invalid checkpoint reference")

	// ErrNotFound marks a reference that resolved to no catalog entry.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupt marks a snapshot whose content no longer matches its
	// catalog entry; no simulation state is touched.
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// #endregion errors
