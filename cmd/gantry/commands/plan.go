package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/emicklei/dot"
	"github.com/spf13/cobra"

	"github.com/gantryctl/gantry/pkg/adapters"
	"github.com/gantryctl/gantry/pkg/manifest"
	"github.com/gantryctl/gantry/pkg/orchestrator"
	"github.com/gantryctl/gantry/pkg/telemetry"
)

func newPlanCommand() *cobra.Command {
	var dotFile string

	cmd := &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Resolve the execution plan without applying",
		Long: `Resolve the manifest's unit graph into an execution plan and print it.

The plan shows the topological levels in execution order. Units at the same
level share no ordering constraint; within a level, ties are broken by
declaration order.`,
		Example: `  # Print the execution plan
  gantry plan deploy.yaml

  # Write a Graphviz rendering of the dependency graph
  gantry plan deploy.yaml --dot plan.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
				Level:  logLevel(),
				Format: "console",
				Output: "stderr",
			})
			if err != nil {
				return err
			}

			m, err := manifest.NewLoader(logger).Load(args[0])
			if err != nil {
				return err
			}

			units, err := manifest.Descriptors(m, adapters.NewRegistry())
			if err != nil {
				return err
			}

			plan, err := orchestrator.NewPlanBuilder().Build(units)
			if err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(renderDot(m.Name, plan)), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
				fmt.Printf("Dependency graph written to %s\n", dotFile)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(plan)
			}

			printPlan(m.Name, plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "output DOT graph file (optional)")

	return cmd
}

func printPlan(name string, plan *orchestrator.ExecutionPlan) {
	fmt.Printf("Plan for %s: %d units, %d levels\n", name, len(plan.Order), plan.Depth)
	for level, ids := range plan.Levels {
		fmt.Printf("  level %d: %s\n", level, strings.Join(ids, ", "))
	}
	for _, edge := range plan.Edges {
		fmt.Printf("  %s -> %s\n", edge.From, edge.To)
	}
}

// renderDot renders the plan as a Graphviz digraph, one row per level.
func renderDot(name string, plan *orchestrator.ExecutionPlan) string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", name)
	g.Attr("rankdir", "LR")

	nodes := make(map[string]dot.Node, len(plan.Order))
	for _, id := range plan.Order {
		node := g.Node(id)
		node.Attr("shape", "box")
		node.Attr("xlabel", fmt.Sprintf("level %d", plan.Nodes[id].Level))
		nodes[id] = node
	}

	for _, edge := range plan.Edges {
		g.Edge(nodes[edge.From], nodes[edge.To])
	}

	return g.String()
}
