package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gantryctl/gantry/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a store.
func ExampleNewSQLiteStore() {
	dir, err := os.MkdirTemp("", "gantry-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            filepath.Join(dir, "gantry.db"),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_CreateRun demonstrates persisting a run and reading it back.
func ExampleSQLiteStore_CreateRun() {
	dir, err := os.MkdirTemp("", "gantry-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "gantry.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	run := &stores.Run{
		ID:        "run-001",
		Status:    "running",
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		log.Fatal(err)
	}

	got, err := store.GetRun(ctx, "run-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Run %s is %s\n", got.ID, got.Status)
	// Output: Run run-001 is running
}
