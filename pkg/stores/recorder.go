package stores

import (
	"context"

	"github.com/gantryctl/gantry/pkg/orchestrator"
)

// RunRecorder adapts a Store to the orchestrator's persistence interface.
type RunRecorder struct {
	store Store
}

// NewRunRecorder creates a recorder backed by the given store.
func NewRunRecorder(store Store) *RunRecorder {
	return &RunRecorder{store: store}
}

// CreateRun persists a new run in its initial state.
func (r *RunRecorder) CreateRun(ctx context.Context, record *orchestrator.RunRecord) error {
	return r.store.CreateRun(ctx, &Run{
		ID:        record.RunID,
		Status:    string(record.Status),
		StartedAt: record.StartedAt,
	})
}

// FinishRun records the run's terminal status and error, if any.
func (r *RunRecorder) FinishRun(ctx context.Context, runID string, status orchestrator.RunStatus, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	return r.store.UpdateRunStatus(ctx, runID, string(status), msg)
}

// AppendTransition appends one phase transition to the run's log.
func (r *RunRecorder) AppendTransition(ctx context.Context, runID string, t orchestrator.Transition) error {
	var note *string
	if t.Note != "" {
		note = &t.Note
	}
	return r.store.AppendTransition(ctx, &Transition{
		RunID:      runID,
		UnitID:     t.UnitID,
		FromState:  string(t.From),
		ToState:    string(t.To),
		Note:       note,
		OccurredAt: t.At,
	})
}

// PutBinding persists one produced output binding.
func (r *RunRecorder) PutBinding(ctx context.Context, runID, unitID, output, value string) error {
	return r.store.PutBinding(ctx, &Binding{
		RunID:  runID,
		UnitID: unitID,
		Output: output,
		Value:  value,
	})
}
