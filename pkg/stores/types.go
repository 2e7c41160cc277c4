package stores

import (
	"context"
	"time"
)

// Run represents a persisted orchestration run.
type Run struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Transition represents one persisted phase transition of a unit.
type Transition struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	UnitID     string    `json:"unit_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Note       *string   `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Binding represents one persisted output binding.
type Binding struct {
	RunID     string    `json:"run_id"`
	UnitID    string    `json:"unit_id"`
	Output    string    `json:"output"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a persisted lifecycle event.
type Event struct {
	ID         int64     `json:"id"`
	RunID      *string   `json:"run_id,omitempty"`
	UnitID     *string   `json:"unit_id,omitempty"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store is the persistence interface for run records.
type Store interface {
	// Init initializes the database connection.
	Init(ctx context.Context) error

	// Migrate runs schema migrations.
	Migrate(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// CreateRun creates a new run record.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns lists runs most recent first.
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// UpdateRunStatus records a run's terminal status.
	UpdateRunStatus(ctx context.Context, id, status string, errMsg *string) error

	// AppendTransition appends a phase transition.
	AppendTransition(ctx context.Context, t *Transition) error

	// ListTransitions lists a run's transitions in order.
	ListTransitions(ctx context.Context, runID string) ([]*Transition, error)

	// PutBinding persists an output binding.
	PutBinding(ctx context.Context, b *Binding) error

	// ListBindings lists a run's bindings.
	ListBindings(ctx context.Context, runID string) ([]*Binding, error)

	// AppendEvent appends a lifecycle event.
	AppendEvent(ctx context.Context, e *Event) error

	// ListEvents lists a run's events in order.
	ListEvents(ctx context.Context, runID string) ([]*Event, error)
}
