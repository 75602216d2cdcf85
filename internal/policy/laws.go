package policy

import (
	"time"

	"github.com/emberveil/governor/internal/sim"
)

// #region law

// Law is an event-triggered rule. Unlike threshold policies, a law watches
// the discrete events of a step report and does not participate in the
// severity ladder unless a policy is separately registered to watch for it.
type Law struct {
	Name  string
	Match func(report sim.StepReport) []LawEvent
}

// #endregion law

// #region watcher

// Watcher runs the configured laws over each step report.
type Watcher struct {
	laws []Law
}

// NewWatcher creates a watcher with laws in registration order.
func NewWatcher(laws ...Law) *Watcher {
	return &Watcher{laws: append([]Law(nil), laws...)}
}

// Observe applies every law to the report and collects the enforcement
// events, in law-registration order.
func (w *Watcher) Observe(report sim.StepReport) []LawEvent {
	var out []LawEvent
	for _, l := range w.laws {
		if l.Match == nil {
			continue
		}
		out = append(out, l.Match(report)...)
	}
	return out
}

// #endregion watcher

// #region restricted-zone-law

// RestrictedZoneLaw fires whenever a companion enters a restricted zone.
func RestrictedZoneLaw(restricted map[string]bool) Law {
	return Law{
		Name: "restricted_zone",
		Match: func(report sim.StepReport) []LawEvent {
			var out []LawEvent
			for _, ev := range report.ZoneEvents {
				if ev.Kind != "enter" || !restricted[ev.Zone] {
					continue
				}
				out = append(out, LawEvent{
					LawName:   "restricted_zone",
					EventName: "zone.enter",
					Payload: map[string]any{
						"companion": ev.Companion,
						"zone":      ev.Zone,
						"cycle":     report.Cycle,
					},
					At: time.Now().UTC(),
				})
			}
			return out
		},
	}
}

// #endregion restricted-zone-law
