package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CyclicDependencyError is returned by the plan builder when the declared
// unit graph contains a cycle. No unit runs when this error is returned.
type CyclicDependencyError struct {
	// Cycle is the full cycle path, first node repeated at the end.
	Cycle []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// DuplicateUnitError is returned by the plan builder when two units declare
// the same identifier.
type DuplicateUnitError struct {
	UnitID string
}

// Error implements the error interface.
func (e *DuplicateUnitError) Error() string {
	return fmt.Sprintf("duplicate unit ID: %s", e.UnitID)
}

// EmptyUnitIDError is returned by the plan builder when a unit is declared
// without an identifier.
type EmptyUnitIDError struct {
	// Index is the declaration position of the offending unit.
	Index int
}

// Error implements the error interface.
func (e *EmptyUnitIDError) Error() string {
	return fmt.Sprintf("unit at declaration index %d has empty ID", e.Index)
}

// UnknownDependencyError is returned by the plan builder when a unit declares
// a dependency on an identifier that resolves to no declared unit.
type UnknownDependencyError struct {
	// UnitID is the unit declaring the dangling reference.
	UnitID string

	// MissingID is the dependency identifier that could not be resolved.
	MissingID string
}

// Error implements the error interface.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("unit %s depends on unknown unit %s", e.UnitID, e.MissingID)
}

// UnknownUnitError is returned when an operation references a unit ID that
// is not part of the current run.
type UnknownUnitError struct {
	UnitID string
}

// Error implements the error interface.
func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown unit: %s", e.UnitID)
}

// IllegalTransitionError is returned when a state change violates the
// per-unit state machine, for example resurrecting a terminal unit.
type IllegalTransitionError struct {
	UnitID string
	From   UnitState
	To     UnitState
}

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition for unit %s: %s -> %s", e.UnitID, e.From, e.To)
}

// MissingBindingError is returned by the executor when a unit requires an
// input binding that has not been recorded. It indicates a malformed plan:
// the producing unit either does not declare the output or is not a
// dependency of the consumer.
type MissingBindingError struct {
	// UnitID is the consuming unit.
	UnitID string

	// Ref is the input reference that could not be resolved.
	Ref InputRef
}

// Error implements the error interface.
func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("unit %s requires binding %s from %s.%s which does not exist",
		e.UnitID, e.Ref.Name, e.Ref.FromUnit, e.Ref.Output)
}

// DuplicateBindingError is returned when a value is recorded twice for the
// same (unit, output) pair. Bindings are write-once within a run.
type DuplicateBindingError struct {
	UnitID string
	Output string
}

// Error implements the error interface.
func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("binding %s.%s already recorded", e.UnitID, e.Output)
}

// ApplyError wraps an adapter failure during a unit's apply operation.
// It halts the run; no downstream unit starts and no rollback is attempted.
type ApplyError struct {
	// UnitID is the unit whose apply operation failed.
	UnitID string

	// Err is the underlying adapter error.
	Err error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply failed for unit %s: %v", e.UnitID, e.Err)
}

// Unwrap returns the underlying adapter error.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

// ReadinessTimeoutError indicates a unit's apply operation completed but its
// effect never became externally visible within the gate budget.
type ReadinessTimeoutError struct {
	// UnitID is the unit that never became ready.
	UnitID string

	// Elapsed is how long the gate polled before giving up.
	Elapsed time.Duration

	// Budget is the configured gate timeout.
	Budget time.Duration
}

// Error implements the error interface.
func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("unit %s applied but not ready after %s (budget %s)",
		e.UnitID, e.Elapsed.Round(time.Millisecond), e.Budget)
}

// DeploymentUnstableError indicates the final unit applied and became visible
// but failed to reach or hold its steady state. Rollback, if any, is the
// platform's own mechanism; the orchestrator only reports the outcome.
type DeploymentUnstableError struct {
	// UnitID is the monitored unit.
	UnitID string

	// LastState is the last observed stability state.
	LastState StabilityState

	// Detail is the probe's description of the last observation.
	Detail string
}

// Error implements the error interface.
func (e *DeploymentUnstableError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unit %s did not stabilize (last state %s): %s",
			e.UnitID, e.LastState, e.Detail)
	}
	return fmt.Sprintf("unit %s did not stabilize (last state %s)", e.UnitID, e.LastState)
}

// FailureClass classifies adapter errors for the readiness gate and
// stability monitor, which must decide between continuing to poll and
// failing the run.
type FailureClass string

const (
	// FailureTransient indicates a temporary failure; polling continues.
	// Examples: network timeouts, eventual-consistency read misses.
	FailureTransient FailureClass = "transient"

	// FailurePermanent indicates a non-recoverable failure; polling stops.
	// Examples: permission denied, resource deleted out of band.
	FailurePermanent FailureClass = "permanent"
)

// classifiedError attaches a FailureClass to an adapter error.
type classifiedError struct {
	class FailureClass
	err   error
}

// Error implements the error interface.
func (e *classifiedError) Error() string {
	return fmt.Sprintf("[%s] %v", e.class, e.err)
}

// Unwrap returns the underlying error.
func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks an adapter error as transient. The readiness gate keeps
// polling through transient verify errors until its budget is exhausted.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: FailureTransient, err: err}
}

// Permanent marks an adapter error as unrecoverable. The readiness gate and
// stability monitor stop immediately when they observe a permanent error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: FailurePermanent, err: err}
}

// IsPermanent returns true if the error chain carries a permanent
// classification. Unclassified errors are treated as transient so that
// eventually-consistent external reads do not abort the gate prematurely.
func IsPermanent(err error) bool {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class == FailurePermanent
	}
	return false
}
