package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emberveil/governor/internal/checkpoint"
	"github.com/emberveil/governor/internal/events"
	"github.com/emberveil/governor/internal/governor"
	"github.com/emberveil/governor/internal/journal"
	"github.com/emberveil/governor/internal/metrics"
	"github.com/emberveil/governor/internal/policy"
	"github.com/emberveil/governor/internal/sim"
	"github.com/emberveil/governor/internal/worldgraph"
)

// #region main
func main() {
	dbPath := envOr("GOVERNOR_DB", "governor.db")
	ckptDir := envOr("GOVERNOR_CHECKPOINTS", "checkpoints")
	policyPath := envOr("GOVERNOR_POLICY", "")
	seed := envInt64("GOVERNOR_SEED", 42)
	interval := envDuration("GOVERNOR_INTERVAL", 250*time.Millisecond)

	store, err := checkpoint.NewStore(ckptDir, dbPath)
	if err != nil {
		log.Fatalf("failed to open checkpoint store: %v", err)
	}
	defer store.Close()

	jour, err := journal.New(store.DB())
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}

	// World layout comes from the graph tables when seed-world has run,
	// otherwise the built-in layout.
	graphStore, err := worldgraph.NewStore(store.DB())
	if err != nil {
		log.Fatalf("failed to init world graph: %v", err)
	}
	layout, err := graphStore.LoadLayout()
	if err != nil || len(layout.Zones) == 0 {
		layout = sim.DefaultLayout()
	}

	world, err := sim.NewWorld(layout, sim.DefaultCompanions(), sim.DefaultRituals(), seed)
	if err != nil {
		log.Fatalf("failed to build world: %v", err)
	}

	polCfg := policy.DefaultConfig()
	if policyPath != "" {
		polCfg, err = policy.LoadConfigFile(policyPath)
		if err != nil {
			log.Fatalf("failed to load policy config: %v", err)
		}
	}
	laws := policy.NewWatcher(policy.RestrictedZoneLaw(layout.RestrictedZones()))

	emitter := events.NewEmitter(jour.AppendEvent)
	gov := governor.New(world, metrics.Evaluate, policy.NewEngine(polCfg.Policies()...),
		laws, store, emitter, jour, governor.Config{
			BreachThreshold:           polCfg.BreachThreshold,
			AutoCheckpointEveryCycles: envInt64("GOVERNOR_AUTOCKPT_CYCLES", 16),
			CycleInterval:             interval,
		})

	if _, err := gov.EnsureGenesis(); err != nil {
		log.Fatalf("failed to write genesis checkpoint: %v", err)
	}

	// Mirror the event stream onto the console while the prompt is live.
	sub := emitter.Subscribe(64)
	go func() {
		for ev := range sub {
			fmt.Printf("\n[EVENT] #%d %s %s\n> ", ev.Seq, ev.T.Format("15:04:05.000"), ev.Kind)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gov.Run(ctx)

	fmt.Println("Emberveil Governor ready (paused).")
	fmt.Printf("  DB: %s | Checkpoints: %s | Interval: %s\n", dbPath, ckptDir, interval)
	fmt.Println("Commands: status resume pause step checkpoint [label] rollback [ref] reset list halt quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, arg := fields[0], ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		if runCommand(ctx, gov, store, cmd, arg) {
			return
		}
	}
	gov.Shutdown(ctx, "stdin closed")
}

// runCommand dispatches one REPL line; true means the process should exit.
func runCommand(ctx context.Context, gov *governor.Governor, store *checkpoint.Store, cmd, arg string) bool {
	switch cmd {
	case "status":
		fmt.Printf("state=%s cycle=%d", gov.State(), gov.Cycle())
		if m := gov.LastMetrics(); m != nil {
			fmt.Printf(" continuity=%.3f identity=%.3f", m.Continuity(), m.Identity())
		}
		fmt.Println()
	case "resume":
		report(gov.Resume(ctx))
	case "pause":
		report(gov.Pause(ctx))
	case "step":
		state, err := gov.StepOnce(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Printf("state=%s cycle=%d\n", state, gov.Cycle())
		}
	case "checkpoint":
		rec, err := gov.Checkpoint(ctx, arg)
		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Printf("saved %s (v%d)\n", rec.Path, rec.StateVersion)
		}
	case "rollback":
		if arg == "" {
			arg = checkpoint.RefLatest
		}
		rec, err := gov.Rollback(ctx, arg)
		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Printf("rolled back, audit record %s; governor paused\n", rec.Path)
		}
	case "reset":
		rec, err := gov.Reset(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Printf("reset to genesis, audit record %s\n", rec.Path)
		}
	case "list":
		records, err := store.List()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		for _, r := range records {
			label := r.Label
			if label == "" {
				label = "-"
			}
			fmt.Printf("  v%-4d %-8s %-16s %s\n", r.StateVersion, r.Kind, label, r.Path)
		}
	case "halt":
		if err := gov.EmergencyShutdown(ctx, "operator halt"); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		return true
	case "quit", "exit":
		gov.Shutdown(ctx, "operator quit")
		return true
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	return false
}

func report(err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
	} else {
		fmt.Println("ok")
	}
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// #endregion helpers
