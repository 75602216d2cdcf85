package governor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emberveil/governor/internal/checkpoint"
	"github.com/emberveil/governor/internal/events"
	"github.com/emberveil/governor/internal/journal"
	"github.com/emberveil/governor/internal/policy"
)

// #region run-loop

// Run drains the command queue and, while Running, drives autonomous cycles
// on CycleInterval pacing. It returns once the governor is Terminated or ctx
// is canceled. Run must be called exactly once; callers submitting commands
// after it returns get ErrTerminated.
func (g *Governor) Run(ctx context.Context) {
	defer close(g.loopDone)
	for {
		if g.State() == StateTerminated {
			return
		}
		// Emergency commands preempt everything already queued.
		select {
		case c := <-g.urgent:
			g.apply(ctx, c)
			continue
		default:
		}
		if g.State() == StateRunning {
			select {
			case c := <-g.urgent:
				g.apply(ctx, c)
			case c := <-g.cmds:
				g.apply(ctx, c)
			case <-ctx.Done():
				g.doShutdown("context canceled")
			case <-time.After(g.cfg.CycleInterval):
				g.runCycle(ctx)
			}
			continue
		}
		select {
		case c := <-g.urgent:
			g.apply(ctx, c)
		case c := <-g.cmds:
			g.apply(ctx, c)
		case <-ctx.Done():
			g.doShutdown("context canceled")
		}
	}
}

// #endregion run-loop

// #region apply

// apply executes one command inside the loop goroutine. Every state
// transition in the program happens here or in runCycle, which gives the
// exactly-once guarantee for transition events without locking around the
// whole cycle.
func (g *Governor) apply(ctx context.Context, c command) {
	res := result{}
	switch c.op {
	case opPause:
		switch g.State() {
		case StateRunning:
			g.setState(StatePaused)
			g.emitter.Emit(events.KindPause, nil)
			log.Printf("[GOV] paused by command")
		case StatePaused:
			// idempotent, no event
		default:
			res.err = ErrTerminated
		}
	case opResume:
		switch g.State() {
		case StatePaused:
			g.setState(StateRunning)
			g.emitter.Emit(events.KindResume, nil)
			log.Printf("[GOV] resumed")
		case StateRunning:
			// idempotent, no event
		default:
			res.err = ErrTerminated
		}
	case opStep:
		if g.State() == StateRunning {
			g.runCycle(ctx)
		}
		res.state = g.State()
	case opCheckpoint:
		switch g.State() {
		case StateRunning, StatePaused:
			res.record, res.err = g.saveCheckpoint(checkpoint.KindManual, c.label)
		default:
			res.err = ErrTerminated
		}
	case opRollback, opReset:
		switch g.State() {
		case StateRunning, StatePaused:
			ref := c.ref
			if c.op == opReset {
				ref = checkpoint.GenesisLabel
			}
			res.record, res.err = g.doRollback(ref)
		default:
			res.err = ErrTerminated
		}
	case opShutdown:
		g.doShutdown(c.reason)
	}
	if res.state == "" {
		res.state = g.State()
	}
	c.reply <- res
}

// #endregion apply

// #region cycle

// runCycle advances the simulation one step and applies governance to the
// resulting report: law enforcement first, then metric evaluation, breach
// reporting, policy evaluation, and finally the strictest-outcome ladder.
func (g *Governor) runCycle(ctx context.Context) {
	g.mu.Lock()
	g.cycle++
	cycle := g.cycle
	g.mu.Unlock()

	report, err := g.engine.Step(ctx)
	if err != nil {
		// A failed step pauses instead of crashing the loop; the diagnostic
		// event tells the operator this pause was not theirs.
		log.Printf("[GOV] cycle %d: step failed: %v", cycle, err)
		g.emitter.Emit(events.KindDiagnostic, events.DiagnosticPayload{
			Reason: fmt.Sprintf("%v: %v", ErrStepFailure, err),
		})
		g.pauseAutonomous()
		g.logCycle(cycle, "pause", fmt.Sprintf("step failed: %v", err))
		return
	}

	for _, lawEv := range g.laws.Observe(report) {
		g.emitter.Emit(events.KindLawEnforced, events.LawEnforcedPayload{
			LawName:   lawEv.LawName,
			EventName: lawEv.EventName,
			Payload:   lawEv.Payload,
		})
		log.Printf("[GOV] cycle %d: law %s enforced on %s", cycle, lawEv.LawName, lawEv.EventName)
	}

	m := g.evaluate(report)
	g.mu.Lock()
	g.lastMetrics = m
	g.mu.Unlock()

	if m.Continuity() < g.cfg.BreachThreshold {
		g.emitter.Emit(events.KindContinuityBreach, events.ContinuityBreachPayload{
			Metrics: m.Clone(),
		})
		log.Printf("[GOV] cycle %d: continuity %.3f below threshold %.3f",
			cycle, m.Continuity(), g.cfg.BreachThreshold)
	}

	violations := g.policies.Evaluate(m)
	for _, v := range violations {
		g.emitter.Emit(events.KindPolicyViolation, events.PolicyViolationPayload{
			PolicyName: v.PolicyName,
			Metrics:    v.Metrics,
		})
	}

	outcome, reason := "ok", ""
	switch policy.Strictest(violations) {
	case policy.SeverityShutdown:
		name := firstWith(violations, policy.SeverityShutdown)
		g.logCycle(cycle, "shutdown", name)
		g.doShutdown("policy " + name)
		return
	case policy.SeverityPause:
		outcome, reason = "pause", firstWith(violations, policy.SeverityPause)
		log.Printf("[GOV] cycle %d: pausing on policy %s", cycle, reason)
		g.pauseAutonomous()
	case policy.SeverityWarn:
		outcome, reason = "warn", firstWith(violations, policy.SeverityWarn)
	}
	g.logCycle(cycle, outcome, reason)

	if g.State() == StateRunning && g.autoCheckpointDue(cycle) {
		if _, err := g.saveCheckpoint(checkpoint.KindAuto, ""); err != nil {
			// Autonomous persistence failure pauses rather than silently
			// running on without durability.
			log.Printf("[GOV] cycle %d: auto checkpoint failed: %v", cycle, err)
			g.emitter.Emit(events.KindDiagnostic, events.DiagnosticPayload{
				Reason: fmt.Sprintf("auto checkpoint failed: %v", err),
			})
			g.pauseAutonomous()
		}
	}
}

// pauseAutonomous pauses from inside the loop, emitting the pause event only
// on an actual transition.
func (g *Governor) pauseAutonomous() {
	if g.State() == StateRunning {
		g.setState(StatePaused)
		g.emitter.Emit(events.KindPause, nil)
	}
}

func firstWith(violations []policy.Violation, sev policy.Severity) string {
	for _, v := range violations {
		if v.Severity == sev {
			return v.PolicyName
		}
	}
	return ""
}

func (g *Governor) autoCheckpointDue(cycle int64) bool {
	if n := g.cfg.AutoCheckpointEveryCycles; n > 0 && cycle%n == 0 {
		return true
	}
	if d := g.cfg.AutoCheckpointInterval; d > 0 {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.lastAutoAt.IsZero() || time.Since(g.lastAutoAt) >= d {
			return true
		}
	}
	return false
}

func (g *Governor) logCycle(cycle int64, outcome, reason string) {
	if g.journal == nil {
		return
	}
	g.mu.Lock()
	m := g.lastMetrics
	g.mu.Unlock()
	if err := g.journal.AppendCycle(journal.CycleRecord{
		Cycle:   cycle,
		Metrics: m,
		Outcome: outcome,
		Reason:  reason,
	}); err != nil {
		log.Printf("[GOV] cycle %d: journal append failed: %v", cycle, err)
	}
}

// #endregion cycle

// #region checkpoint

// saveCheckpoint exports the live state and persists it, bracketed by the
// checkpoint_scheduled / checkpoint_saved event pair. Only the run loop
// calls this, so the exported snapshot can never interleave with a step.
func (g *Governor) saveCheckpoint(kind checkpoint.Kind, label string) (checkpoint.Record, error) {
	g.emitter.Emit(events.KindCheckpointScheduled, nil)
	snapshot, err := g.engine.Export()
	if err != nil {
		return checkpoint.Record{}, fmt.Errorf("%w: export: %v", ErrPersistenceFailure, err)
	}
	var continuity *float64
	g.mu.Lock()
	if g.lastMetrics != nil {
		c := g.lastMetrics.Continuity()
		continuity = &c
	}
	g.mu.Unlock()
	rec, err := g.store.Save(kind, label, snapshot, continuity)
	if err != nil {
		return checkpoint.Record{}, wrapPersistence(err)
	}
	g.mu.Lock()
	g.lastAutoAt = time.Now()
	g.mu.Unlock()
	g.emitter.Emit(events.KindCheckpointSaved, events.CheckpointSavedPayload{Path: rec.Path})
	log.Printf("[CKPT] saved %s (%s, v%d)", rec.Path, rec.Kind, rec.StateVersion)
	return rec, nil
}

// #endregion checkpoint

// #region rollback

// doRollback restores ref into the engine and records the restoration as a
// new Rollback-kind catalog entry. The audit record is written before the
// snapshot is installed so a record-write failure aborts the rollback with
// the live state untouched; an install refusal after the record lands leaves
// behind one extra catalog entry whose content is the still-valid source
// snapshot, never an untracked mutation.
func (g *Governor) doRollback(ref string) (checkpoint.Record, error) {
	rec, snapshot, err := g.store.Restore(ref)
	if err != nil {
		return checkpoint.Record{}, err
	}
	audit, err := g.store.Save(checkpoint.KindRollback, "", snapshot, rec.Continuity)
	if err != nil {
		return checkpoint.Record{}, wrapPersistence(err)
	}
	if err := g.engine.Import(snapshot); err != nil {
		// The snapshot passed its checksum but the engine refused it.
		return checkpoint.Record{}, fmt.Errorf("%w: install %s: %v", checkpoint.ErrCorrupt, rec.Path, err)
	}
	g.setState(StatePaused)
	g.emitter.Emit(events.KindRollbackComplete, events.RollbackCompletePayload{
		Checkpoint: rec.Path,
	})
	log.Printf("[GOV] rolled back to %s, recorded %s", rec.Path, audit.Path)
	return audit, nil
}

// #endregion rollback

// #region shutdown

// doShutdown is idempotent; only the first call emits the shutdown event.
// ShuttingDown is observable while the emitter flushes, then the state is
// Terminated for good.
func (g *Governor) doShutdown(reason string) {
	if s := g.State(); s == StateTerminated || s == StateShuttingDown {
		return
	}
	g.setState(StateShuttingDown)
	g.emitter.Emit(events.KindShutdown, events.ShutdownPayload{Reason: reason})
	log.Printf("[GOV] shutting down: %s", reason)
	g.emitter.Close()
	g.setState(StateTerminated)
}

// #endregion shutdown

func wrapPersistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
}
