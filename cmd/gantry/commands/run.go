package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryctl/gantry/pkg/adapters"
	"github.com/gantryctl/gantry/pkg/manifest"
	"github.com/gantryctl/gantry/pkg/orchestrator"
	"github.com/gantryctl/gantry/pkg/stores"
	"github.com/gantryctl/gantry/pkg/telemetry"
)

func newRunCommand(version string) *cobra.Command {
	var (
		maxParallel  int
		metricsAddr  string
		traceExport  string
		traceTarget  string
		noPersist    bool
	)

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Execute a deployment manifest",
		Long: `Execute a deployment manifest: resolve the unit graph, apply each unit
in dependency order, gate on readiness between phases, and monitor the final
unit's stability if the manifest asks for it.

The run halts at the first failed unit. Applied effects are left in place;
nothing is rolled back and no unit is retried.`,
		Example: `  # Execute a deployment
  gantry run deploy.yaml

  # Cap concurrency within a level and expose Prometheus metrics
  gantry run deploy.yaml --max-parallel 2 --metrics-addr :9090

  # Export spans to an OTLP collector
  gantry run deploy.yaml --trace otlp --trace-endpoint localhost:4317`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := telemetry.DefaultConfig("gantry", version)
			cfg.Logging.Level = logLevel()
			if jsonOutput {
				cfg.Logging.Format = "json"
			}
			if traceExport != "" {
				cfg.Tracing.Enabled = true
				cfg.Tracing.Exporter = traceExport
				cfg.Tracing.Endpoint = traceTarget
				cfg.Tracing.Insecure = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(cfg.Logging)
			if err != nil {
				return err
			}

			metrics, err := telemetry.NewMetrics(cfg.Metrics)
			if err != nil {
				return err
			}

			tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracer.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Warn("tracer shutdown failed")
				}
			}()

			events := telemetry.NewEventPublisher(cfg.Events)
			defer events.Close()

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				go func() {
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						logger.WithError(err).Warn("metrics server stopped")
					}
				}()
				logger.WithField("addr", metricsAddr).Info("serving metrics")
			}

			loader := manifest.NewLoader(logger)
			m, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			registry := adapters.NewRegistry()
			units, err := manifest.Descriptors(m, registry)
			if err != nil {
				return err
			}
			stability, err := manifest.StabilityPolicy(m, registry)
			if err != nil {
				return err
			}

			var runStore orchestrator.RunStore
			if !noPersist {
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
				runStore = stores.NewRunRecorder(store)
				events.Subscribe(stores.NewEventSink(store, logger).Handle)
			}

			if maxParallel == 0 {
				maxParallel = m.MaxParallel
			}

			orch := orchestrator.New(orchestrator.Config{
				MaxParallel: maxParallel,
				Logger:      logger,
				Metrics:     metrics,
				Events:      events,
				Tracer:      tracer,
				Store:       runStore,
			})

			record, bindings, runErr := orch.Run(ctx, units, stability)
			if record != nil {
				printRunResult(record, bindings)
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "cap concurrent applies within a level (0 uses the manifest value)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&traceExport, "trace", "", "trace exporter (otlp, stdout)")
	cmd.Flags().StringVar(&traceTarget, "trace-endpoint", "localhost:4317", "OTLP collector endpoint")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "skip writing the run record to the database")

	return cmd
}

func printRunResult(record *orchestrator.RunRecord, bindings *orchestrator.Bindings) {
	if jsonOutput {
		result := map[string]interface{}{
			"run_id":   record.RunID,
			"status":   record.Status,
			"duration": record.Duration.String(),
			"units":    record.UnitStates(),
			"summary":  record.Summary(),
		}
		if bindings != nil {
			flat := map[string]string{}
			for key, value := range bindings.Snapshot() {
				flat[key.UnitID+"."+key.Output] = value
			}
			result["bindings"] = flat
		}
		_ = json.NewEncoder(os.Stdout).Encode(result)
		return
	}

	summary := record.Summary()
	fmt.Printf("Run %s: %s in %s\n", record.RunID, record.Status, record.Duration.Round(time.Millisecond))
	fmt.Printf("  units: %d total, %d ready, %d failed, %d cancelled, %d pending\n",
		summary.Total, summary.Ready, summary.Failed, summary.Cancelled, summary.Pending)
	if bindings != nil {
		for key, value := range bindings.Snapshot() {
			fmt.Printf("  %s.%s = %s\n", key.UnitID, key.Output, value)
		}
	}
}
