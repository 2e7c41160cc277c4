package orchestrator

import (
	"encoding/json"
	"fmt"
)

// UnitState represents the lifecycle state of a deployment unit within a run.
type UnitState string

const (
	// UnitStatePending indicates the unit has not yet reached its turn in
	// the execution plan.
	UnitStatePending UnitState = "pending"

	// UnitStateAwaitingInputs indicates the unit's turn has arrived and its
	// required input bindings are being resolved.
	UnitStateAwaitingInputs UnitState = "awaiting_inputs"

	// UnitStateApplying indicates the unit's apply operation is in flight.
	UnitStateApplying UnitState = "applying"

	// UnitStateAwaitingReadiness indicates apply succeeded and the
	// readiness gate is polling the unit's verification predicate.
	UnitStateAwaitingReadiness UnitState = "awaiting_readiness"

	// UnitStateReady indicates the unit's effect is externally visible.
	// Ready is terminal for the unit and releases its dependents.
	UnitStateReady UnitState = "ready"

	// UnitStateFailed indicates the unit failed during apply or readiness.
	// Failed is terminal and halts the run.
	UnitStateFailed UnitState = "failed"

	// UnitStateCancelled indicates the run was cancelled while the unit
	// was in flight. Applied effects are left in place.
	UnitStateCancelled UnitState = "cancelled"
)

// IsTerminal returns true if the state is final for the unit.
func (s UnitState) IsTerminal() bool {
	return s == UnitStateReady || s == UnitStateFailed || s == UnitStateCancelled
}

// IsActive returns true if the unit is between its turn arriving and a
// terminal state.
func (s UnitState) IsActive() bool {
	return s == UnitStateAwaitingInputs || s == UnitStateApplying ||
		s == UnitStateAwaitingReadiness
}

// Validate checks if the unit state is valid.
func (s UnitState) Validate() error {
	switch s {
	case UnitStatePending, UnitStateAwaitingInputs, UnitStateApplying,
		UnitStateAwaitingReadiness, UnitStateReady, UnitStateFailed,
		UnitStateCancelled:
		return nil
	default:
		return fmt.Errorf("invalid unit state: %s", s)
	}
}

// canTransition reports whether moving from s to next is a legal step in the
// per-unit state machine.
func (s UnitState) canTransition(next UnitState) bool {
	switch s {
	case UnitStatePending:
		return next == UnitStateAwaitingInputs || next == UnitStateCancelled
	case UnitStateAwaitingInputs:
		return next == UnitStateApplying || next == UnitStateFailed ||
			next == UnitStateCancelled
	case UnitStateApplying:
		return next == UnitStateAwaitingReadiness || next == UnitStateFailed ||
			next == UnitStateCancelled
	case UnitStateAwaitingReadiness:
		return next == UnitStateReady || next == UnitStateFailed ||
			next == UnitStateCancelled
	default:
		return false
	}
}

// RunStatus represents the overall status of an orchestration run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but not started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every unit reached Ready and, if a
	// stability policy was set, the final unit held steady state.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run halted at a failed unit.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled by the caller.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// IsActive returns true if the run is pending or running.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s UnitState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *UnitState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = UnitState(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
