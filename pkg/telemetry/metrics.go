package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the orchestrator.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Unit metrics
	unitsExecuted *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec

	// Readiness gate metrics
	gatePolls    *prometheus.CounterVec
	gateWait     *prometheus.HistogramVec
	gateTimeouts *prometheus.CounterVec

	// Stability monitor metrics
	stabilityObservations *prometheus.CounterVec
	stabilityOutcomes     *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When metrics are disabled a no-op instance is returned.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of orchestration runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of orchestration runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of orchestration runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		unitsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_executed_total",
				Help:      "Total number of deployment units executed",
			},
			[]string{"state"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_phase_duration_seconds",
				Help:      "Duration of unit phases in seconds",
				Buckets:   buckets,
			},
			[]string{"unit_id", "phase"},
		),
		gatePolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_polls_total",
				Help:      "Total number of readiness verification polls",
			},
			[]string{"unit_id", "outcome"},
		),
		gateWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gate_wait_seconds",
				Help:      "Time spent waiting on readiness gates in seconds",
				Buckets:   buckets,
			},
			[]string{"unit_id"},
		),
		gateTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_timeouts_total",
				Help:      "Total number of readiness gate timeouts",
			},
			[]string{"unit_id"},
		),
		stabilityObservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stability_observations_total",
				Help:      "Total number of stability probe observations",
			},
			[]string{"unit_id", "state"},
		),
		stabilityOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stability_outcomes_total",
				Help:      "Final stability monitor outcomes",
			},
			[]string{"outcome"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active orchestration runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.unitsExecuted,
		m.phaseDuration,
		m.gatePolls,
		m.gateWait,
		m.gateTimeouts,
		m.stabilityObservations,
		m.stabilityOutcomes,
		m.activeRuns,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordUnitExecuted records a unit reaching a terminal state.
func (m *Metrics) RecordUnitExecuted(state string) {
	if m == nil || m.unitsExecuted == nil {
		return
	}
	m.unitsExecuted.WithLabelValues(state).Inc()
}

// RecordPhaseDuration records how long a unit spent in one phase.
func (m *Metrics) RecordPhaseDuration(unitID, phase string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(unitID, phase).Observe(duration.Seconds())
}

// RecordGatePoll records one readiness verification poll.
func (m *Metrics) RecordGatePoll(unitID, outcome string) {
	if m == nil || m.gatePolls == nil {
		return
	}
	m.gatePolls.WithLabelValues(unitID, outcome).Inc()
}

// RecordGateWait records the total time a unit waited on its gate.
func (m *Metrics) RecordGateWait(unitID string, duration time.Duration) {
	if m == nil || m.gateWait == nil {
		return
	}
	m.gateWait.WithLabelValues(unitID).Observe(duration.Seconds())
}

// RecordGateTimeout records a readiness gate timeout.
func (m *Metrics) RecordGateTimeout(unitID string) {
	if m == nil || m.gateTimeouts == nil {
		return
	}
	m.gateTimeouts.WithLabelValues(unitID).Inc()
}

// RecordStabilityObservation records one stability probe reading.
func (m *Metrics) RecordStabilityObservation(unitID, state string) {
	if m == nil || m.stabilityObservations == nil {
		return
	}
	m.stabilityObservations.WithLabelValues(unitID, state).Inc()
}

// RecordStabilityOutcome records the final stability monitor outcome.
func (m *Metrics) RecordStabilityOutcome(outcome string) {
	if m == nil || m.stabilityOutcomes == nil {
		return
	}
	m.stabilityOutcomes.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, or nil when metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
