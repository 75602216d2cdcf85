package policy

import (
	"time"

	"github.com/emberveil/governor/internal/metrics"
)

// #region engine

// Engine evaluates a fixed, ordered set of policies against per-cycle
// metrics. The set is configured at startup and does not change during a run.
type Engine struct {
	policies []Policy
}

// NewEngine creates an engine with policies in registration order.
func NewEngine(policies ...Policy) *Engine {
	return &Engine{policies: append([]Policy(nil), policies...)}
}

// Policies returns the registered policies in order.
func (e *Engine) Policies() []Policy {
	return append([]Policy(nil), e.policies...)
}

// #endregion engine

// #region evaluate

// Evaluate applies every predicate to the snapshot in registration order and
// returns one Violation per firing policy for this cycle only. The engine
// keeps no cross-cycle state and never acts on severities itself; only the
// governor does.
func (e *Engine) Evaluate(m metrics.Metrics) []Violation {
	now := time.Now().UTC()
	var out []Violation
	for _, p := range e.policies {
		if p.Predicate == nil || !p.Predicate(m) {
			continue
		}
		out = append(out, Violation{
			PolicyName: p.Name,
			Severity:   p.Severity,
			Metrics:    m.Clone(),
			At:         now,
		})
	}
	return out
}

// #endregion evaluate

// #region strictest

// Strictest returns the highest severity among the violations, or "" when
// there are none. Shutdown > Pause > Warn; a single cycle never both pauses
// and shuts down because the caller acts on this one outcome.
func Strictest(violations []Violation) Severity {
	var top Severity
	for _, v := range violations {
		if v.Severity.rank() > top.rank() {
			top = v.Severity
		}
	}
	return top
}

// #endregion strictest
