package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryctl/gantry/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Inspect persisted run records",
		Long: `Inspect persisted run records.

Without arguments, lists recent runs. With a run ID, prints the run's phase
transition log and the output bindings its units produced.`,
		Example: `  # List recent runs
  gantry status

  # Show one run's transition log and bindings
  gantry status 2f1c9c4e-8b1a-4f3e-9d7a-1c2b3d4e5f6a`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			if len(args) == 0 {
				return listRuns(ctx, store, limit)
			}
			return showRun(ctx, store, args[0])
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func listRuns(ctx context.Context, store stores.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-9s  started %s", run.ID, run.Status, run.StartedAt.Format(time.RFC3339))
		if run.CompletedAt != nil {
			line += fmt.Sprintf("  took %s", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
		fmt.Println(line)
	}
	return nil
}

func showRun(ctx context.Context, store stores.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	transitions, err := store.ListTransitions(ctx, runID)
	if err != nil {
		return err
	}
	bindings, err := store.ListBindings(ctx, runID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"run":         run,
			"transitions": transitions,
			"bindings":    bindings,
		})
	}

	fmt.Printf("Run %s: %s, started %s\n", run.ID, run.Status, run.StartedAt.Format(time.RFC3339))
	if run.Error != nil {
		fmt.Printf("  error: %s\n", *run.Error)
	}

	if len(transitions) > 0 {
		fmt.Println("Transitions:")
		for _, t := range transitions {
			line := fmt.Sprintf("  %s  %-20s %s -> %s",
				t.OccurredAt.Format(time.RFC3339), t.UnitID, t.FromState, t.ToState)
			if t.Note != nil && *t.Note != "" {
				line += fmt.Sprintf("  (%s)", *t.Note)
			}
			fmt.Println(line)
		}
	}

	if len(bindings) > 0 {
		fmt.Println("Bindings:")
		for _, b := range bindings {
			fmt.Printf("  %s.%s = %s\n", b.UnitID, b.Output, b.Value)
		}
	}
	return nil
}
