package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantryctl/gantry/pkg/adapters"
	"github.com/gantryctl/gantry/pkg/manifest"
	"github.com/gantryctl/gantry/pkg/orchestrator"
	"github.com/gantryctl/gantry/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a deployment manifest",
		Long: `Validate a deployment manifest without applying anything.

This command checks:
  - YAML syntax and schema conformance
  - Adapter kinds against the registry
  - Input references against declared outputs and dependencies
  - The dependency graph for cycles and dangling references`,
		Example: `  # Validate a manifest
  gantry validate deploy.yaml

  # Revalidate on every save while editing
  gantry validate --watch deploy.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
				Level:  logLevel(),
				Format: "console",
				Output: "stderr",
			})
			if err != nil {
				return err
			}

			loader := manifest.NewLoader(logger)
			registry := adapters.NewRegistry()

			if watch {
				err := loader.Watch(cmd.Context(), path, func(m *manifest.Manifest) error {
					report(validateManifest(m, registry), path)
					return nil
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			m, err := loader.Load(path)
			if err != nil {
				report(err, path)
				return err
			}
			if err := validateManifest(m, registry); err != nil {
				report(err, path)
				return err
			}
			report(nil, path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "revalidate whenever the manifest changes")

	return cmd
}

// validateManifest runs the checks that need more than the loader: adapter
// construction and graph resolution.
func validateManifest(m *manifest.Manifest, registry *adapters.Registry) error {
	units, err := manifest.Descriptors(m, registry)
	if err != nil {
		return err
	}
	if _, err := manifest.StabilityPolicy(m, registry); err != nil {
		return err
	}
	if _, err := orchestrator.NewPlanBuilder().Build(units); err != nil {
		return err
	}
	return nil
}

func report(err error, path string) {
	if jsonOutput {
		result := map[string]interface{}{"manifest": path, "valid": err == nil}
		if err != nil {
			result["error"] = err.Error()
		}
		_ = json.NewEncoder(os.Stdout).Encode(result)
		return
	}
	if err != nil {
		fmt.Printf("%s: INVALID: %v\n", path, err)
		return
	}
	fmt.Printf("%s: OK\n", path)
}
