package stores

import (
	"context"
	"time"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// EventSink persists published lifecycle events. Persistence is best
// effort: a failed write is logged and never stalls the run.
type EventSink struct {
	store  Store
	logger *telemetry.Logger
}

// NewEventSink creates a sink backed by the given store.
func NewEventSink(store Store, logger *telemetry.Logger) *EventSink {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &EventSink{
		store:  store,
		logger: logger.NewComponentLogger("event-sink"),
	}
}

// Handle persists one event. Register it with an event publisher via
// Subscribe.
func (s *EventSink) Handle(event telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e := &Event{
		Level:      event.Level,
		Message:    event.Message,
		OccurredAt: event.Timestamp,
	}
	if event.RunID != "" {
		e.RunID = &event.RunID
	}
	if event.UnitID != "" {
		e.UnitID = &event.UnitID
	}

	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.logger.WithError(err).Warn("failed to persist event")
	}
}
