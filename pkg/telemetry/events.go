package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a run or unit lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// UnitID is the associated unit ID, if applicable.
	UnitID string `json:"unit_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event type constants.
const (
	EventTypeRunStarted       = "run.started"
	EventTypeRunCompleted     = "run.completed"
	EventTypeRunFailed        = "run.failed"
	EventTypeRunCancelled     = "run.cancelled"
	EventTypeUnitTransition   = "unit.transition"
	EventTypeUnitReady        = "unit.ready"
	EventTypeUnitFailed       = "unit.failed"
	EventTypeGateTimeout      = "gate.timeout"
	EventTypeStabilityReached = "stability.reached"
	EventTypeStabilityLost    = "stability.lost"
)

// Event severity constants.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventPublisher fans lifecycle events out to in-process subscribers.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []EventSubscriber
	wg          sync.WaitGroup
	mu          sync.RWMutex
	done        chan struct{}
	closeOnce   sync.Once
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ep := &EventPublisher{
		config: cfg,
		done:   make(chan struct{}),
	}

	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep
}

// Publish publishes an event to all subscribers. Events published to a full
// async buffer are dropped with an error rather than blocking execution.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.done:
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliver(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID string, total int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started with %d units", runID, total),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"total_units": total,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunFailed,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishRunCancelled publishes a run cancelled event.
func (ep *EventPublisher) PublishRunCancelled(runID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCancelled,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s cancelled after %s", runID, duration.Round(time.Millisecond)),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishUnitReady publishes a unit ready event.
func (ep *EventPublisher) PublishUnitReady(runID, unitID string) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitReady,
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s is ready", unitID),
		Level:   EventLevelInfo,
	})
}

// PublishUnitFailed publishes a unit failed event.
func (ep *EventPublisher) PublishUnitFailed(runID, unitID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitFailed,
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s failed: %s", unitID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStabilityReached publishes a stability reached event.
func (ep *EventPublisher) PublishStabilityReached(runID, unitID string) error {
	return ep.Publish(Event{
		Type:    EventTypeStabilityReached,
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s reached a stable state", unitID),
		Level:   EventLevelInfo,
	})
}

// PublishStabilityLost publishes a stability lost event.
func (ep *EventPublisher) PublishStabilityLost(runID, unitID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeStabilityLost,
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s did not hold a stable state: %s", unitID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishUnitTransition publishes a unit state transition event.
func (ep *EventPublisher) PublishUnitTransition(runID, unitID, from, to, note string) error {
	level := EventLevelInfo
	if to == "failed" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypeUnitTransition,
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s: %s -> %s", unitID, from, to),
		Level:   level,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
			"note": note,
		},
	})
}

// PublishGateTimeout publishes a readiness gate timeout event.
func (ep *EventPublisher) PublishGateTimeout(runID, unitID string, elapsed time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeGateTimeout,
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s not ready after %s", unitID, elapsed.Round(time.Millisecond)),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"elapsed": elapsed.Seconds(),
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriber)
}

// deliver sends an event to all subscribers synchronously.
func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	subscribers := make([]EventSubscriber, len(ep.subscribers))
	copy(subscribers, ep.subscribers)
	ep.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber(event)
	}
}

// processEvents delivers buffered events in the background.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.done:
			// Drain remaining events before exiting.
			for {
				select {
				case event := <-ep.buffer:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// Close stops the publisher and waits for buffered events to be delivered.
func (ep *EventPublisher) Close() {
	if ep == nil {
		return
	}
	ep.closeOnce.Do(func() {
		close(ep.done)
	})
	ep.wg.Wait()
}
