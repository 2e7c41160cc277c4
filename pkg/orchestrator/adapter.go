package orchestrator

import "context"

// Adapter is the only boundary between the orchestrator and the external
// system a unit manipulates. One adapter is bound per unit.
type Adapter interface {
	// Apply performs the unit's side effect (provisioning a resource,
	// pushing an artifact) using the resolved input bindings and returns
	// the values the unit produces. Apply is invoked at most once per run;
	// the orchestrator never retries it automatically since apply
	// operations are not required to be idempotent.
	Apply(ctx context.Context, inputs map[string]string) (map[string]string, error)

	// Verify performs a read-only check against the external system to
	// confirm the unit's effect is visible and consistent. It must be safe
	// to call repeatedly; the readiness gate polls it until it reports
	// ready or the gate budget is exhausted.
	Verify(ctx context.Context, outputs map[string]string) (bool, error)
}

// StabilityState describes the observed steady-state of a deployed workload.
type StabilityState string

const (
	// StabilityConverging indicates the workload has not yet reached its
	// desired state but is still making progress.
	StabilityConverging StabilityState = "converging"

	// StabilityStable indicates observed state equals desired state.
	StabilityStable StabilityState = "stable"

	// StabilityRolledBack indicates the platform's own rollback mechanism
	// reverted the deployment. The orchestrator reports this as a failed
	// run but does not attempt remediation.
	StabilityRolledBack StabilityState = "rolled_back"

	// StabilityDegraded indicates the workload regressed without a
	// platform rollback (for example, health checks began failing after
	// an initially healthy deployment).
	StabilityDegraded StabilityState = "degraded"
)

// Observation is a single steady-state reading from a StabilityProbe.
type Observation struct {
	// State is the observed stability state.
	State StabilityState

	// Detail is an optional human-readable description of the reading,
	// surfaced in errors and the run record.
	Detail string
}

// StabilityProbe reads the steady-state health of a deployed unit.
// Implementations must be read-only and safe to call repeatedly.
type StabilityProbe interface {
	Observe(ctx context.Context, outputs map[string]string) (Observation, error)
}
