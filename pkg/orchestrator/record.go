package orchestrator

import (
	"sync"
	"time"
)

// RunRecord is the append-only log of phase transitions for one
// orchestration run. It tracks the current state of every unit, is safe for
// concurrent appends from units running in the same level, and is discarded
// (after optional persistence) when the run completes.
type RunRecord struct {
	mu sync.RWMutex

	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	transitions []Transition
	states      map[string]UnitState
	order       []string
}

// NewRunRecord creates a run record with every unit in Pending.
func NewRunRecord(runID string, plan *ExecutionPlan) *RunRecord {
	states := make(map[string]UnitState, len(plan.Order))
	order := make([]string, len(plan.Order))
	copy(order, plan.Order)
	for _, id := range order {
		states[id] = UnitStatePending
	}

	return &RunRecord{
		RunID:     runID,
		Status:    RunStatusPending,
		StartedAt: time.Now(),
		states:    states,
		order:     order,
	}
}

// Append records a state transition for a unit. Illegal transitions are
// rejected so a terminal unit can never be resurrected within a run.
func (r *RunRecord) Append(unitID string, to UnitState, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, ok := r.states[unitID]
	if !ok {
		return &UnknownUnitError{UnitID: unitID}
	}
	if !from.canTransition(to) {
		return &IllegalTransitionError{UnitID: unitID, From: from, To: to}
	}

	r.states[unitID] = to
	r.transitions = append(r.transitions, Transition{
		UnitID: unitID,
		From:   from,
		To:     to,
		At:     time.Now(),
		Note:   note,
	})
	return nil
}

// StateOf returns the current state of a unit.
func (r *RunRecord) StateOf(unitID string) UnitState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[unitID]
}

// Transitions returns a copy of the ordered transition log.
func (r *RunRecord) Transitions() []Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// Summary computes run statistics from current unit states.
func (r *RunRecord) Summary() RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := RunSummary{Total: len(r.order)}
	for _, id := range r.order {
		switch r.states[id] {
		case UnitStateReady:
			summary.Ready++
		case UnitStateFailed:
			summary.Failed++
		case UnitStateCancelled:
			summary.Cancelled++
		case UnitStatePending:
			summary.Pending++
		}
	}
	return summary
}

// UnitStates returns unit states keyed by ID, in no particular order.
func (r *RunRecord) UnitStates() map[string]UnitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]UnitState, len(r.states))
	for id, state := range r.states {
		out[id] = state
	}
	return out
}

// finish stamps the terminal run status and duration.
func (r *RunRecord) finish(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Status = status
	now := time.Now()
	r.CompletedAt = &now
	r.Duration = now.Sub(r.StartedAt)
}

// setStatus updates the overall run status.
func (r *RunRecord) setStatus(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
}
