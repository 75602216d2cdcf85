package policy

import (
	"time"

	"github.com/emberveil/governor/internal/metrics"
)

// #region severity

// Severity ranks what the governor must do about a violation.
type Severity string

const (
	SeverityWarn     Severity = "warn"
	SeverityPause    Severity = "pause"
	SeverityShutdown Severity = "shutdown"
)

// rank orders severities so the strictest outcome can win a cycle.
func (s Severity) rank() int {
	switch s {
	case SeverityShutdown:
		return 3
	case SeverityPause:
		return 2
	case SeverityWarn:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.rank() > 0
}

// #endregion severity

// #region policy

// Policy is a named predicate over a metrics snapshot. Predicates must be
// pure with respect to governor state; a policy that wants cross-cycle memory
// (e.g. N consecutive breaches) closes over its own counter.
type Policy struct {
	Name      string
	Predicate func(metrics.Metrics) bool
	Severity  Severity
}

// #endregion policy

// #region violation

// Violation records one policy firing against one metrics snapshot. Created
// by the engine, consumed once by the governor, never mutated.
type Violation struct {
	PolicyName string
	Severity   Severity
	Metrics    metrics.Metrics
	At         time.Time
}

// #endregion violation

// #region law-event

// LawEvent is the categorical counterpart to a Violation: a named law
// enforced because of a discrete simulation event rather than a metric
// threshold. The payload stays an open map because law triggers carry
// caller-defined data.
type LawEvent struct {
	LawName   string
	EventName string
	Payload   map[string]any
	At        time.Time
}

// #endregion law-event
