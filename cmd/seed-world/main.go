package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/emberveil/governor/internal/checkpoint"
	"github.com/emberveil/governor/internal/sim"
	"github.com/emberveil/governor/internal/worldgraph"
)

// #region main
func main() {
	dbPath := envOr("GOVERNOR_DB", "governor.db")
	ckptDir := envOr("GOVERNOR_CHECKPOINTS", "checkpoints")
	seed := envInt64("GOVERNOR_SEED", 42)

	fmt.Println("=== World Seed Tool ===")
	fmt.Printf("  DB: %s | Checkpoints: %s | Seed: %d\n", dbPath, ckptDir, seed)

	store, err := checkpoint.NewStore(ckptDir, dbPath)
	if err != nil {
		log.Fatalf("failed to open checkpoint store: %v", err)
	}
	defer store.Close()

	graphStore, err := worldgraph.NewStore(store.DB())
	if err != nil {
		log.Fatalf("failed to init world graph: %v", err)
	}

	// Phase 1: zone graph
	fmt.Println("\n--- Phase 1: Zone Graph ---")
	layout := sim.DefaultLayout()
	if err := graphStore.Seed(layout); err != nil {
		log.Fatalf("failed to seed zone graph: %v", err)
	}
	restricted := 0
	for _, z := range layout.Zones {
		if z.Restricted {
			restricted++
		}
	}
	fmt.Printf("  Zones: %d (%d restricted) | Edges: %d\n",
		len(layout.Zones), restricted, len(layout.Edges))

	// Phase 2: genesis checkpoint
	fmt.Println("\n--- Phase 2: Genesis Checkpoint ---")
	if rec, err := store.Resolve(checkpoint.GenesisLabel); err == nil {
		fmt.Printf("  Genesis already present: %s (v%d)\n", rec.Path, rec.StateVersion)
	} else {
		world, err := sim.NewWorld(layout, sim.DefaultCompanions(), sim.DefaultRituals(), seed)
		if err != nil {
			log.Fatalf("failed to build world: %v", err)
		}
		snapshot, err := world.Export()
		if err != nil {
			log.Fatalf("failed to export world: %v", err)
		}
		rec, err := store.Save(checkpoint.KindManual, checkpoint.GenesisLabel, snapshot, nil)
		if err != nil {
			log.Fatalf("failed to save genesis checkpoint: %v", err)
		}
		fmt.Printf("  Saved %s (%d bytes)\n", rec.Path, rec.SizeBytes)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("  Companions: %d | Rituals: %d\n",
		len(sim.DefaultCompanions()), len(sim.DefaultRituals()))
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

// #endregion helpers
