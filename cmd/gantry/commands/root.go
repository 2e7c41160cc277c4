package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbPath     string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gantry",
		Short: "Gantry - Deployment Phase Orchestrator",
		Long: `Gantry orders the phases of a deployment. It resolves a declared unit
graph into an execution plan, applies each unit through its adapter, and
holds dependents back until a readiness gate confirms the unit's effect is
externally visible.

Features:
  - Dependency graph resolution with cycle detection
  - Readiness gates with capped exponential backoff
  - Write-once output bindings between phases
  - Post-deployment stability monitoring
  - Persisted run records for later inspection`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "gantry.db", "run record database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}

func logLevel() string {
	if verbose {
		return "debug"
	}
	return "info"
}
