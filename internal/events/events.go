package events

import (
	"encoding/json"
	"time"

	"github.com/emberveil/governor/internal/metrics"
)

// #region kinds

// Kind names one entry of the emitted event vocabulary.
type Kind string

const (
	KindPause               Kind = "pause"
	KindResume              Kind = "resume"
	KindShutdown            Kind = "shutdown"
	KindRollbackComplete    Kind = "rollback_complete"
	KindContinuityBreach    Kind = "continuity_breach"
	KindCheckpointScheduled Kind = "checkpoint_scheduled"
	KindCheckpointSaved     Kind = "checkpoint_saved"
	KindPolicyViolation     Kind = "policy_violation"
	KindLawEnforced         Kind = "law_enforced"

	// KindDiagnostic reports an autonomous-path failure, so an operator can
	// tell "it paused itself" apart from "I paused it".
	KindDiagnostic Kind = "diagnostic"
)

// #endregion kinds

// #region event

// Event is one entry of the append-only event stream. ID, Seq, and T are
// assigned by the emitter; T is monotonically non-decreasing across the
// stream. Seq orders events within one run, ID stays unique across runs
// sharing a journal.
type Event struct {
	ID      string
	Seq     int64
	T       time.Time
	Kind    Kind
	Payload Payload // nil for kinds with no payload fields
}

// Payload is a closed, per-kind variant rather than an open string-keyed
// map, so consumers get exhaustiveness instead of key-guessing. Only
// law_enforced keeps a generic map, because law triggers genuinely carry
// caller-defined data.
type Payload interface {
	eventPayload()
}

// #endregion event

// #region payloads

// ShutdownPayload carries the optional shutdown reason.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

// RollbackCompletePayload names the checkpoint that was actually applied.
type RollbackCompletePayload struct {
	Checkpoint string `json:"checkpoint"`
}

// ContinuityBreachPayload carries the full metrics snapshot of the breaching
// cycle.
type ContinuityBreachPayload struct {
	Metrics metrics.Metrics `json:"metrics"`
}

// CheckpointSavedPayload names the durable snapshot path.
type CheckpointSavedPayload struct {
	Path string `json:"path"`
}

// PolicyViolationPayload names the firing policy and its metrics snapshot.
type PolicyViolationPayload struct {
	PolicyName string          `json:"policy_name"`
	Metrics    metrics.Metrics `json:"metrics"`
}

// LawEnforcedPayload reports a categorical law enforcement.
type LawEnforcedPayload struct {
	LawName   string         `json:"law_name"`
	EventName string         `json:"event_name"`
	Payload   map[string]any `json:"payload"`
}

// DiagnosticPayload explains an autonomous-path failure.
type DiagnosticPayload struct {
	Reason string `json:"reason"`
}

func (ShutdownPayload) eventPayload()         {}
func (RollbackCompletePayload) eventPayload() {}
func (ContinuityBreachPayload) eventPayload() {}
func (CheckpointSavedPayload) eventPayload()  {}
func (PolicyViolationPayload) eventPayload()  {}
func (LawEnforcedPayload) eventPayload()      {}
func (DiagnosticPayload) eventPayload()       {}

// #endregion payloads

// #region wire

// wireEvent is the transport shape: { t, event, payload }.
type wireEvent struct {
	T       string          `json:"t"`
	Event   Kind            `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON renders the documented wire shape. Kinds without payload
// fields serialize an empty payload object.
func (e Event) MarshalJSON() ([]byte, error) {
	payload := json.RawMessage(`{}`)
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		payload = raw
	}
	return json.Marshal(wireEvent{
		T:       e.T.UTC().Format(time.RFC3339Nano),
		Event:   e.Kind,
		Payload: payload,
	})
}

// #endregion wire
