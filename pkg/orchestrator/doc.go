// Package orchestrator implements the Gantry deployment phase orchestrator.
//
// The orchestrator takes a set of declared deployment units (for example a
// container registry, a runtime image, and a running service), resolves their
// dependency graph into an execution plan, and applies each unit in
// dependency order. After a unit's apply operation returns, a readiness gate
// polls the unit's verification predicate until the unit's effect is
// externally observable; no dependent unit starts on apply completion alone.
// After the final phase a stability monitor confirms the deployed workload
// holds its desired steady state.
//
// The package is organized around a small number of cooperating pieces:
//
//   - PlanBuilder resolves declared dependencies into a leveled execution
//     plan, rejecting cycles and dangling references.
//   - PhaseExecutor walks the plan, resolving input bindings, invoking unit
//     adapters, and driving the per-unit state machine.
//   - ReadinessGate blocks dependents until a unit's effect is visible.
//   - StabilityMonitor watches the final unit's steady state.
//   - Bindings is the write-once map of values produced by ready units.
//   - RunRecord is the append-only transition log for one orchestration run.
//
// External side effects are confined to Adapter implementations; the
// orchestrator itself performs no I/O beyond persistence and telemetry.
package orchestrator
