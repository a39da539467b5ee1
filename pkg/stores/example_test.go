package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/stores"
)

// ExampleOpen journals a run and reads it back as history.
func ExampleOpen() {
	dir, err := os.MkdirTemp("", "hostkit-journal")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	store, err := stores.Open(ctx, filepath.Join(dir, "journal.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(4 * time.Minute)
	run := &stores.Run{
		ID:         "run-001",
		Host:       "vps-1",
		Target:     "ssh://deploy@vps-1",
		Status:     engine.RunStatusCompleted,
		StartedAt:  started,
		FinishedAt: &finished,
		Total:      24,
		Applied:    24,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		log.Fatal(err)
	}

	last, err := store.LastRun(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(last.ID, last.Status, last.Applied, last.Duration())
	// Output: run-001 completed 24 4m0s
}
