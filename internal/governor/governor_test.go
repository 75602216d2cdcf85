package governor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/emberveil/governor/internal/checkpoint"
	"github.com/emberveil/governor/internal/events"
	"github.com/emberveil/governor/internal/metrics"
	"github.com/emberveil/governor/internal/policy"
	"github.com/emberveil/governor/internal/sim"
)

// #region fakes

// fakeEngine is a minimal deterministic engine: the snapshot is just the
// cycle counter, so restores are trivially checkable.
type fakeEngine struct {
	mu        sync.Mutex
	cycle     int64
	drift     float64
	stepErr   error
	importErr error
	report    sim.StepReport
}

func (f *fakeEngine) Step(ctx context.Context) (sim.StepReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stepErr != nil {
		return sim.StepReport{}, f.stepErr
	}
	f.cycle++
	r := f.report
	r.Cycle = f.cycle
	r.Drift = f.drift
	return r, nil
}

func (f *fakeEngine) Export() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []byte(fmt.Sprintf("cycle=%d", f.cycle)), nil
}

func (f *fakeEngine) Import(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.importErr != nil {
		return f.importErr
	}
	var c int64
	if _, err := fmt.Sscanf(string(data), "cycle=%d", &c); err != nil {
		return fmt.Errorf("bad snapshot: %w", err)
	}
	f.cycle = c
	return nil
}

func (f *fakeEngine) Cycle() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycle
}

func (f *fakeEngine) setDrift(d float64) {
	f.mu.Lock()
	f.drift = d
	f.mu.Unlock()
}

func (f *fakeEngine) setImportErr(err error) {
	f.mu.Lock()
	f.importErr = err
	f.mu.Unlock()
}

func (f *fakeEngine) setStepErr(err error) {
	f.mu.Lock()
	f.stepErr = err
	f.mu.Unlock()
}

func fakeEvaluate(r sim.StepReport) metrics.Metrics {
	cont := 1 - r.Drift
	if cont < 0 {
		cont = 0
	}
	return metrics.Metrics{
		metrics.KeyContinuity: cont,
		metrics.KeyIdentity:   1,
	}
}

// eventLog collects every emitted event in order.
type eventLog struct {
	mu  sync.Mutex
	evs []events.Event
}

func (l *eventLog) sink(ev events.Event) error {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, len(l.evs))
	for i, ev := range l.evs {
		out[i] = ev.Kind
	}
	return out
}

func (l *eventLog) count(k events.Kind) int {
	n := 0
	for _, kind := range l.kinds() {
		if kind == k {
			n++
		}
	}
	return n
}

// #endregion fakes

// #region harness

type harness struct {
	gov   *Governor
	eng   *fakeEngine
	log   *eventLog
	store *checkpoint.Store
}

// newHarness starts a governor whose autonomous pacing is effectively off,
// so every cycle in the test is driven by StepOnce.
func newHarness(t *testing.T, cfg Config, pols *policy.Engine, laws *policy.Watcher) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := checkpoint.NewStore(filepath.Join(dir, "checkpoints"), filepath.Join(dir, "governor.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	elog := &eventLog{}
	eng := &fakeEngine{}
	if cfg.CycleInterval == 0 {
		cfg.CycleInterval = time.Hour
	}
	gov := New(eng, fakeEvaluate, pols, laws, store, events.NewEmitter(elog.sink), nil, cfg)
	go gov.Run(context.Background())
	t.Cleanup(func() {
		gov.Shutdown(context.Background(), "test teardown")
		<-gov.loopDone
	})
	return &harness{gov: gov, eng: eng, log: elog, store: store}
}

func (h *harness) shutdownAndWait(t *testing.T) {
	t.Helper()
	if err := h.gov.Shutdown(context.Background(), "test"); err != nil && !errors.Is(err, ErrTerminated) {
		t.Fatalf("Shutdown: %v", err)
	}
	<-h.gov.loopDone
}

// #endregion harness

// #region lifecycle-tests

func TestStartsPaused(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if got := h.gov.State(); got != StatePaused {
		t.Fatalf("initial state = %q, want %q", got, StatePaused)
	}
	state, err := h.gov.StepOnce(ctx)
	if err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if state != StatePaused {
		t.Fatalf("StepOnce while paused reported %q, want %q", state, StatePaused)
	}
	if h.eng.Cycle() != 0 {
		t.Fatalf("paused StepOnce advanced the engine to cycle %d", h.eng.Cycle())
	}
}

func TestPauseIsIdempotentAndEmitsOnce(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := h.gov.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := h.gov.Pause(ctx); err != nil {
			t.Fatalf("repeat Pause %d: %v", i, err)
		}
	}
	h.shutdownAndWait(t)

	if n := h.log.count(events.KindPause); n != 1 {
		t.Fatalf("pause emitted %d times, want 1; stream %v", n, h.log.kinds())
	}
	if n := h.log.count(events.KindResume); n != 1 {
		t.Fatalf("resume emitted %d times, want 1", n)
	}
}

func TestCommandsAfterShutdownAreRejected(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()
	h.shutdownAndWait(t)

	if got := h.gov.State(); got != StateTerminated {
		t.Fatalf("state after shutdown = %q, want %q", got, StateTerminated)
	}
	if err := h.gov.Resume(ctx); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Resume after shutdown: err = %v, want ErrTerminated", err)
	}
	if _, err := h.gov.Checkpoint(ctx, "late"); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Checkpoint after shutdown: err = %v, want ErrTerminated", err)
	}
	if _, err := h.gov.Rollback(ctx, "latest"); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Rollback after shutdown: err = %v, want ErrTerminated", err)
	}
	// Repeated shutdown is a no-op, not an error.
	if err := h.gov.Shutdown(ctx, "again"); err != nil && !errors.Is(err, ErrTerminated) {
		t.Fatalf("second Shutdown: %v", err)
	}
	if n := h.log.count(events.KindShutdown); n != 1 {
		t.Fatalf("shutdown emitted %d times, want 1", n)
	}
}

func TestEmergencyShutdownTerminates(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.EmergencyShutdown(ctx, "operator abort"); err != nil && !errors.Is(err, ErrTerminated) {
		t.Fatalf("EmergencyShutdown: %v", err)
	}
	<-h.gov.loopDone
	if got := h.gov.State(); got != StateTerminated {
		t.Fatalf("state = %q, want %q", got, StateTerminated)
	}
	if n := h.log.count(events.KindShutdown); n != 1 {
		t.Fatalf("shutdown emitted %d times, want 1", n)
	}
}

func TestStepOnceAdvancesWhileRunning(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	for i := 1; i <= 3; i++ {
		state, err := h.gov.StepOnce(ctx)
		if err != nil {
			t.Fatalf("StepOnce %d: %v", i, err)
		}
		if state != StateRunning {
			t.Fatalf("StepOnce %d reported %q, want %q", i, state, StateRunning)
		}
	}
	if h.eng.Cycle() != 3 {
		t.Fatalf("engine cycle = %d, want 3", h.eng.Cycle())
	}
	if h.gov.Cycle() != 3 {
		t.Fatalf("governor cycle = %d, want 3", h.gov.Cycle())
	}
}

func TestStepFailurePausesWithDiagnostic(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.eng.setStepErr(errors.New("ritual host unreachable"))
	state, err := h.gov.StepOnce(ctx)
	if err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if state != StatePaused {
		t.Fatalf("state after failed step = %q, want %q", state, StatePaused)
	}

	// The governor survives: clearing the fault and resuming works.
	h.eng.setStepErr(nil)
	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume after failure: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce after recovery: %v", err)
	}
	h.shutdownAndWait(t)

	if h.log.count(events.KindDiagnostic) != 1 {
		t.Fatalf("diagnostic emitted %d times, want 1; stream %v",
			h.log.count(events.KindDiagnostic), h.log.kinds())
	}
	kinds := h.log.kinds()
	diag, pause := -1, -1
	for i, k := range kinds {
		if k == events.KindDiagnostic && diag < 0 {
			diag = i
		}
		if k == events.KindPause && pause < 0 {
			pause = i
		}
	}
	if diag < 0 || pause < 0 || pause < diag {
		t.Fatalf("want diagnostic before pause, stream %v", kinds)
	}
}

// #endregion lifecycle-tests

// #region checkpoint-tests

func TestManualCheckpointRoundTrip(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	rec, err := h.gov.Checkpoint(ctx, "before-drift")
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if rec.Kind != checkpoint.KindManual || rec.Label != "before-drift" {
		t.Fatalf("record = %+v, want manual/before-drift", rec)
	}

	for i := 0; i < 4; i++ {
		if _, err := h.gov.StepOnce(ctx); err != nil {
			t.Fatalf("StepOnce: %v", err)
		}
	}
	if h.eng.Cycle() != 5 {
		t.Fatalf("engine cycle = %d, want 5", h.eng.Cycle())
	}

	audit, err := h.gov.Rollback(ctx, "before-drift")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if h.eng.Cycle() != 1 {
		t.Fatalf("engine cycle after rollback = %d, want 1", h.eng.Cycle())
	}
	if h.gov.State() != StatePaused {
		t.Fatalf("state after rollback = %q, want %q", h.gov.State(), StatePaused)
	}
	if audit.Kind != checkpoint.KindRollback {
		t.Fatalf("audit record kind = %q, want %q", audit.Kind, checkpoint.KindRollback)
	}
	if audit.Checksum != rec.Checksum {
		t.Fatalf("audit checksum %s does not match source checkpoint %s", audit.Checksum, rec.Checksum)
	}

	records, err := h.store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	rollbacks := 0
	for _, r := range records {
		if r.Kind == checkpoint.KindRollback {
			rollbacks++
		}
	}
	if rollbacks != 1 {
		t.Fatalf("catalog has %d rollback records, want 1", rollbacks)
	}

	h.shutdownAndWait(t)
	if n := h.log.count(events.KindRollbackComplete); n != 1 {
		t.Fatalf("rollback_complete emitted %d times, want 1", n)
	}
	// Rollback lands Paused without a separate pause event.
	if n := h.log.count(events.KindPause); n != 0 {
		t.Fatalf("rollback emitted %d pause events, want 0; stream %v", n, h.log.kinds())
	}
}

func TestRollbackUnsafeRefRejected(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if _, err := h.gov.Checkpoint(ctx, "only"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	before, _ := h.store.List()

	_, err := h.gov.Rollback(ctx, "../../etc/passwd")
	if !errors.Is(err, checkpoint.ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}
	if h.gov.State() != StatePaused {
		t.Fatalf("state changed to %q on rejected rollback", h.gov.State())
	}
	after, _ := h.store.List()
	if len(after) != len(before) {
		t.Fatalf("catalog grew from %d to %d on rejected rollback", len(before), len(after))
	}

	h.shutdownAndWait(t)
	if n := h.log.count(events.KindRollbackComplete); n != 0 {
		t.Fatalf("rollback_complete emitted on failure")
	}
}

func TestRollbackInstallRefusalLeavesWorldUntouched(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if _, err := h.gov.Checkpoint(ctx, "stable"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}

	h.eng.setImportErr(errors.New("engine refused snapshot"))
	_, err := h.gov.Rollback(ctx, "stable")
	if !errors.Is(err, checkpoint.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if h.eng.Cycle() != 2 {
		t.Fatalf("engine cycle = %d after refused install, want 2", h.eng.Cycle())
	}
	if h.gov.State() != StateRunning {
		t.Fatalf("state = %q after refused install, want %q", h.gov.State(), StateRunning)
	}

	h.shutdownAndWait(t)
	if n := h.log.count(events.KindRollbackComplete); n != 0 {
		t.Fatalf("rollback_complete emitted on refused install")
	}
}

func TestRollbackUnknownRefLeavesStateAlone(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	_, err := h.gov.Rollback(ctx, "no-such-label")
	if !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if h.gov.State() != StateRunning {
		t.Fatalf("state = %q after failed rollback, want %q", h.gov.State(), StateRunning)
	}
}

func TestRollbackLatest(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if _, err := h.gov.Checkpoint(ctx, ""); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if _, err := h.gov.Rollback(ctx, checkpoint.RefLatest); err != nil {
		t.Fatalf("Rollback latest: %v", err)
	}
	if h.eng.Cycle() != 1 {
		t.Fatalf("engine cycle = %d, want 1", h.eng.Cycle())
	}
}

func TestResetRestoresGenesis(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if _, err := h.gov.EnsureGenesis(); err != nil {
		t.Fatalf("EnsureGenesis: %v", err)
	}
	// EnsureGenesis is idempotent.
	if _, err := h.gov.EnsureGenesis(); err != nil {
		t.Fatalf("second EnsureGenesis: %v", err)
	}

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.gov.StepOnce(ctx); err != nil {
			t.Fatalf("StepOnce: %v", err)
		}
	}
	audit, err := h.gov.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if h.eng.Cycle() != 0 {
		t.Fatalf("engine cycle after reset = %d, want 0", h.eng.Cycle())
	}
	if audit.Kind != checkpoint.KindRollback {
		t.Fatalf("reset audit kind = %q, want %q", audit.Kind, checkpoint.KindRollback)
	}

	records, _ := h.store.List()
	genesis := 0
	for _, r := range records {
		if r.Label == checkpoint.GenesisLabel {
			genesis++
		}
	}
	if genesis != 1 {
		t.Fatalf("catalog has %d genesis records, want 1", genesis)
	}
}

func TestAutoCheckpointScheduledThenSaved(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3, AutoCheckpointEveryCycles: 2}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := h.gov.StepOnce(ctx); err != nil {
			t.Fatalf("StepOnce: %v", err)
		}
	}
	h.shutdownAndWait(t)

	kinds := h.log.kinds()
	scheduled, saved := h.log.count(events.KindCheckpointScheduled), h.log.count(events.KindCheckpointSaved)
	if scheduled != 2 || saved != 2 {
		t.Fatalf("scheduled=%d saved=%d, want 2/2; stream %v", scheduled, saved, kinds)
	}
	for i, k := range kinds {
		if k == events.KindCheckpointScheduled {
			if i+1 >= len(kinds) || kinds[i+1] != events.KindCheckpointSaved {
				t.Fatalf("checkpoint_scheduled at %d not followed by checkpoint_saved: %v", i, kinds)
			}
		}
	}

	records, _ := h.store.List()
	autos := 0
	for _, r := range records {
		if r.Kind == checkpoint.KindAuto {
			autos++
		}
	}
	if autos != 2 {
		t.Fatalf("catalog has %d auto checkpoints, want 2", autos)
	}
}

// #endregion checkpoint-tests

// #region policy-tests

func TestLowContinuityBreachThenPause(t *testing.T) {
	pols := policy.NewEngine(policy.Policy{
		Name: "continuity_collapse",
		Predicate: func(m metrics.Metrics) bool {
			return m.Continuity() < 0.5
		},
		Severity: policy.SeverityPause,
	})
	h := newHarness(t, Config{BreachThreshold: 0.3}, pols, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.eng.setDrift(0.9) // continuity 0.1, below threshold and policy floor
	state, err := h.gov.StepOnce(ctx)
	if err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if state != StatePaused {
		t.Fatalf("state = %q, want %q", state, StatePaused)
	}
	h.shutdownAndWait(t)

	kinds := h.log.kinds()
	want := []events.Kind{events.KindResume, events.KindContinuityBreach,
		events.KindPolicyViolation, events.KindPause, events.KindShutdown}
	if len(kinds) != len(want) {
		t.Fatalf("stream %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("stream[%d] = %q, want %q (full %v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestBreachAloneDoesNotPause(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.eng.setDrift(0.9)
	state, err := h.gov.StepOnce(ctx)
	if err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if state != StateRunning {
		t.Fatalf("breach without a pause policy changed state to %q", state)
	}
	h.shutdownAndWait(t)
	if h.log.count(events.KindContinuityBreach) != 1 {
		t.Fatalf("continuity_breach emitted %d times, want 1", h.log.count(events.KindContinuityBreach))
	}
}

func TestShutdownPolicyTerminates(t *testing.T) {
	pols := policy.NewEngine(policy.Policy{
		Name: "identity_loss",
		Predicate: func(m metrics.Metrics) bool {
			return m.Continuity() < 0.2
		},
		Severity: policy.SeverityShutdown,
	})
	h := newHarness(t, Config{BreachThreshold: 0.3}, pols, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.eng.setDrift(0.95)
	state, err := h.gov.StepOnce(ctx)
	if err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if state != StateTerminated {
		t.Fatalf("state = %q, want %q", state, StateTerminated)
	}
	<-h.gov.loopDone

	kinds := h.log.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != events.KindShutdown {
		t.Fatalf("stream should end with shutdown: %v", kinds)
	}
	if h.log.count(events.KindPolicyViolation) != 1 {
		t.Fatalf("policy_violation emitted %d times, want 1", h.log.count(events.KindPolicyViolation))
	}
}

func TestStrictestSeverityWins(t *testing.T) {
	pols := policy.NewEngine(
		policy.Policy{
			Name:      "mild_warn",
			Predicate: func(m metrics.Metrics) bool { return m.Continuity() < 0.9 },
			Severity:  policy.SeverityWarn,
		},
		policy.Policy{
			Name:      "hard_pause",
			Predicate: func(m metrics.Metrics) bool { return m.Continuity() < 0.6 },
			Severity:  policy.SeverityPause,
		},
	)
	h := newHarness(t, Config{BreachThreshold: 0.1}, pols, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.eng.setDrift(0.5) // fires both, pause must win
	state, err := h.gov.StepOnce(ctx)
	if err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if state != StatePaused {
		t.Fatalf("state = %q, want %q", state, StatePaused)
	}
	h.shutdownAndWait(t)
	if h.log.count(events.KindPolicyViolation) != 2 {
		t.Fatalf("policy_violation emitted %d times, want 2", h.log.count(events.KindPolicyViolation))
	}
}

func TestLawEnforcedOnRestrictedZoneEntry(t *testing.T) {
	laws := policy.NewWatcher(policy.RestrictedZoneLaw(map[string]bool{"undervault": true}))
	h := newHarness(t, Config{BreachThreshold: 0.3}, nil, laws)
	ctx := context.Background()

	h.eng.report = sim.StepReport{
		ZoneEvents: []sim.ZoneEvent{
			{Companion: "wren", Zone: "undervault", Kind: "enter"},
			{Companion: "ashe", Zone: "glade", Kind: "enter"},
		},
	}
	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := h.gov.StepOnce(ctx); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	h.shutdownAndWait(t)

	if h.log.count(events.KindLawEnforced) != 1 {
		t.Fatalf("law_enforced emitted %d times, want 1; stream %v",
			h.log.count(events.KindLawEnforced), h.log.kinds())
	}
	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	for _, ev := range h.log.evs {
		if ev.Kind != events.KindLawEnforced {
			continue
		}
		p, ok := ev.Payload.(events.LawEnforcedPayload)
		if !ok {
			t.Fatalf("law_enforced payload type %T", ev.Payload)
		}
		if p.LawName != "restricted_zone" || p.Payload["companion"] != "wren" {
			t.Fatalf("law_enforced payload = %+v", p)
		}
	}
}

// #endregion policy-tests

// #region autonomous-tests

func TestAutonomousCyclingWhileRunning(t *testing.T) {
	h := newHarness(t, Config{BreachThreshold: 0.3, CycleInterval: 2 * time.Millisecond}, nil, nil)
	ctx := context.Background()

	if err := h.gov.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.eng.Cycle() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("autonomous loop drove only %d cycles", h.eng.Cycle())
		}
		time.Sleep(time.Millisecond)
	}
	if err := h.gov.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	at := h.eng.Cycle()
	time.Sleep(20 * time.Millisecond)
	if h.eng.Cycle() != at {
		t.Fatalf("engine advanced from %d to %d while paused", at, h.eng.Cycle())
	}
}

// #endregion autonomous-tests
