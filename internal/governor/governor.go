package governor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emberveil/governor/internal/checkpoint"
	"github.com/emberveil/governor/internal/events"
	"github.com/emberveil/governor/internal/journal"
	"github.com/emberveil/governor/internal/metrics"
	"github.com/emberveil/governor/internal/policy"
	"github.com/emberveil/governor/internal/sim"
)

// #region state

// State is the governor lifecycle state. Exactly one instance per governor,
// mutated only by the run loop.
type State string

const (
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateShuttingDown State = "shutting_down"
	StateTerminated   State = "terminated" // terminal, no further transitions
)

// #endregion state

// #region errors

var (
	// ErrTerminated rejects commands after the governor reached a terminal
	// state.
	ErrTerminated = errors.New("governor terminated")

	// ErrStepFailure marks an exception during simulation advance. On the
	// autonomous path it forces Paused rather than propagating.
	ErrStepFailure = errors.New("simulation step failed")

	// ErrPersistenceFailure marks an I/O failure while saving a checkpoint;
	// the record was not added to the catalog and no checkpoint_saved event
	// was emitted.
	ErrPersistenceFailure = errors.New("checkpoint persistence failed")
)

// #endregion errors

// #region config

// Config holds the governor's runtime knobs.
type Config struct {
	// BreachThreshold is the continuity score below which the governor
	// reports governor.continuity_breach. Breach reporting never pauses by
	// itself; only a Pause-severity policy does.
	BreachThreshold float64

	// AutoCheckpointEveryCycles checkpoints every N cycles. 0 disables.
	AutoCheckpointEveryCycles int64

	// AutoCheckpointInterval checkpoints on a wall-clock interval. 0
	// disables.
	AutoCheckpointInterval time.Duration

	// CycleInterval is the autonomous pacing between steps while Running.
	CycleInterval time.Duration
}

// DefaultConfig returns the stock knobs.
func DefaultConfig() Config {
	return Config{
		BreachThreshold:           0.3,
		AutoCheckpointEveryCycles: 8,
		CycleInterval:             250 * time.Millisecond,
	}
}

// #endregion config

// #region governor-struct

// Governor is the single authority for lifecycle state. External commands
// are serialized onto a single-consumer queue the run loop drains between
// steps, so no command ever interrupts a step, checkpoint, or restore in
// progress.
type Governor struct {
	cfg      Config
	engine   sim.Engine
	evaluate metrics.Evaluator
	policies *policy.Engine
	laws     *policy.Watcher
	store    *checkpoint.Store
	emitter  *events.Emitter
	journal  *journal.Journal // optional

	mu          sync.Mutex
	state       State
	cycle       int64
	lastAutoAt  time.Time
	lastMetrics metrics.Metrics

	cmds     chan command
	urgent   chan command
	loopDone chan struct{}
}

// New wires a governor. It starts Paused; Resume begins autonomous cycling.
// jour may be nil.
func New(engine sim.Engine, evaluate metrics.Evaluator, policies *policy.Engine,
	laws *policy.Watcher, store *checkpoint.Store, emitter *events.Emitter,
	jour *journal.Journal, cfg Config) *Governor {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultConfig().CycleInterval
	}
	if policies == nil {
		policies = policy.NewEngine()
	}
	if laws == nil {
		laws = policy.NewWatcher()
	}
	return &Governor{
		cfg:      cfg,
		engine:   engine,
		evaluate: evaluate,
		policies: policies,
		laws:     laws,
		store:    store,
		emitter:  emitter,
		journal:  jour,
		state:    StatePaused,
		cmds:     make(chan command, 16),
		urgent:   make(chan command, 4),
		loopDone: make(chan struct{}),
	}
}

// #endregion governor-struct

// #region command-types

type opcode int

const (
	opPause opcode = iota
	opResume
	opStep
	opCheckpoint
	opRollback
	opReset
	opShutdown
)

type command struct {
	op     opcode
	ref    string
	label  string
	reason string
	reply  chan result
}

type result struct {
	state  State
	record checkpoint.Record
	err    error
}

// #endregion command-types

// #region accessors

// State returns the current lifecycle state.
func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Cycle returns how many cycles the governor has driven.
func (g *Governor) Cycle() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cycle
}

// LastMetrics returns the most recent metrics snapshot, nil before the
// first cycle.
func (g *Governor) LastMetrics() metrics.Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastMetrics == nil {
		return nil
	}
	return g.lastMetrics.Clone()
}

func (g *Governor) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// #endregion accessors

// #region public-commands

// Pause transitions Running to Paused. Pausing an already paused governor is
// a no-op that emits nothing.
func (g *Governor) Pause(ctx context.Context) error {
	_, err := g.submit(ctx, command{op: opPause})
	return err
}

// Resume transitions Paused to Running.
func (g *Governor) Resume(ctx context.Context) error {
	_, err := g.submit(ctx, command{op: opResume})
	return err
}

// StepOnce drives one cycle if Running. In any other state it is a no-op
// that reports the current state, since UI step buttons get double-clicked.
func (g *Governor) StepOnce(ctx context.Context) (State, error) {
	res, err := g.submit(ctx, command{op: opStep})
	return res.state, err
}

// Checkpoint saves a manual checkpoint with an optional label.
func (g *Governor) Checkpoint(ctx context.Context, label string) (checkpoint.Record, error) {
	res, err := g.submit(ctx, command{op: opCheckpoint, label: label})
	return res.record, err
}

// Rollback restores the referenced checkpoint ("latest", a catalog path, or
// a label), records the restoration as a new Rollback-kind catalog entry,
// and leaves the governor Paused. All-or-nothing: on any failure the live
// state and lifecycle state are unchanged and the specific error kind is
// returned.
func (g *Governor) Rollback(ctx context.Context, ref string) (checkpoint.Record, error) {
	res, err := g.submit(ctx, command{op: opRollback, ref: ref})
	return res.record, err
}

// Reset rolls back to the distinguished genesis checkpoint.
func (g *Governor) Reset(ctx context.Context) (checkpoint.Record, error) {
	res, err := g.submit(ctx, command{op: opReset})
	return res.record, err
}

// Shutdown drains ahead-of-it commands, then transitions through
// ShuttingDown to Terminated.
func (g *Governor) Shutdown(ctx context.Context, reason string) error {
	_, err := g.submit(ctx, command{op: opShutdown, reason: reason})
	return err
}

// EmergencyShutdown jumps the command queue: it is processed before any
// queued step or rollback, but still waits for an in-flight operation to
// finish so no half-written checkpoint is left on disk.
func (g *Governor) EmergencyShutdown(ctx context.Context, reason string) error {
	return g.submitTo(ctx, g.urgent, command{op: opShutdown, reason: reason})
}

// #endregion public-commands

// #region submit

func (g *Governor) submit(ctx context.Context, c command) (result, error) {
	c.reply = make(chan result, 1)
	select {
	case g.cmds <- c:
	case <-g.loopDone:
		return result{state: g.State()}, ErrTerminated
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case res := <-c.reply:
		return res, res.err
	case <-g.loopDone:
		return result{state: g.State()}, ErrTerminated
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (g *Governor) submitTo(ctx context.Context, ch chan command, c command) error {
	c.reply = make(chan result, 1)
	select {
	case ch <- c:
	case <-g.loopDone:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case res := <-c.reply:
		return res.err
	case <-g.loopDone:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// #endregion submit

// #region genesis

// EnsureGenesis writes the genesis checkpoint from the engine's current
// state if the catalog does not have one yet. Called once at startup,
// before Run.
func (g *Governor) EnsureGenesis() (checkpoint.Record, error) {
	if rec, err := g.store.Resolve(checkpoint.GenesisLabel); err == nil {
		return rec, nil
	} else if !errors.Is(err, checkpoint.ErrNotFound) {
		return checkpoint.Record{}, err
	}
	snapshot, err := g.engine.Export()
	if err != nil {
		return checkpoint.Record{}, err
	}
	rec, err := g.store.Save(checkpoint.KindManual, checkpoint.GenesisLabel, snapshot, nil)
	if err != nil {
		return checkpoint.Record{}, wrapPersistence(err)
	}
	return rec, nil
}

// #endregion genesis
