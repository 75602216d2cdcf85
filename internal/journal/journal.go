package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberveil/governor/internal/events"
	"github.com/emberveil/governor/internal/metrics"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS event_journal (
	event_id      TEXT PRIMARY KEY,
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	payload_json  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_log (
	cycle         INTEGER PRIMARY KEY,
	metrics_json  TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region types

// EventRow is one persisted event, payload kept as the wire JSON. EventID
// stays unique across runs sharing a journal; Seq restarts per run.
type EventRow struct {
	EventID     string
	Seq         int64
	Kind        events.Kind
	CreatedAt   time.Time
	PayloadJSON string
}

// CycleRecord is the per-cycle audit row: the scored metrics and what the
// governor decided. cmd/fixture-export turns these back into replay input.
type CycleRecord struct {
	Cycle     int64
	Metrics   metrics.Metrics
	Outcome   string // "ok" | "warn" | "pause" | "shutdown"
	Reason    string
	CreatedAt time.Time
}

// #endregion types

// #region journal

// Journal persists the event stream and per-cycle decisions. It shares the
// checkpoint catalog database.
type Journal struct {
	db *sql.DB
}

// New creates the journal tables if needed.
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// #endregion journal

// #region append-event

// AppendEvent writes one event row. Satisfies events.Sink.
func (j *Journal) AppendEvent(ev events.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	payload := []byte(`{}`)
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payload = raw
	}
	_, err := j.db.Exec(
		`INSERT INTO event_journal (event_id, seq, kind, created_at, payload_json) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Seq, string(ev.Kind), ev.T.UTC().Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// #endregion append-event

// #region append-cycle

// AppendCycle writes one per-cycle decision row.
func (j *Journal) AppendCycle(rec CycleRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO cycle_log (cycle, metrics_json, outcome, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Cycle, string(metricsJSON), rec.Outcome, nullIfEmpty(rec.Reason),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append cycle: %w", err)
	}
	return nil
}

// #endregion append-cycle

// #region list

// ListEvents returns the event journal in seq order, newest last. A positive
// limit keeps only the most recent rows; limit <= 0 means all.
func (j *Journal) ListEvents(limit int) ([]EventRow, error) {
	const cols = `SELECT event_id, seq, kind, created_at, payload_json FROM event_journal`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = j.db.Query(cols+` ORDER BY rowid DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.Query(cols + ` ORDER BY rowid ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		var kind, createdStr string
		if err := rows.Scan(&row.EventID, &row.Seq, &kind, &createdStr, &row.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		row.Kind = events.Kind(kind)
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// ListCycles returns the cycle log in cycle order, newest last. A positive
// limit keeps only the most recent rows; limit <= 0 means all.
func (j *Journal) ListCycles(limit int) ([]CycleRecord, error) {
	const cols = `SELECT cycle, metrics_json, outcome, reason, created_at FROM cycle_log`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = j.db.Query(cols+` ORDER BY cycle DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.Query(cols + ` ORDER BY cycle ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var metricsJSON, createdStr string
		var reason sql.NullString
		if err := rows.Scan(&rec.Cycle, &metricsJSON, &rec.Outcome, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		if reason.Valid {
			rec.Reason = reason.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// #endregion list

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
