package telemetry

import (
	"sync"
	"testing"
	"time"
)

func TestPublishSync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})
	defer ep.Close()

	var mu sync.Mutex
	var received []Event
	ep.Subscribe(func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})

	if err := ep.PublishRunStarted("run-1", 3); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := ep.PublishUnitTransition("run-1", "registry", "pending", "applying", ""); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].Type != EventTypeRunStarted || received[0].RunID != "run-1" {
		t.Errorf("unexpected first event %+v", received[0])
	}
	if received[0].ID == "" || received[0].Timestamp.IsZero() {
		t.Error("expected generated ID and timestamp")
	}
	if received[1].Type != EventTypeUnitTransition || received[1].UnitID != "registry" {
		t.Errorf("unexpected second event %+v", received[1])
	}
}

func TestPublishDisabled(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: false})
	defer ep.Close()

	called := false
	ep.Subscribe(func(Event) { called = true })

	if err := ep.Publish(Event{Type: EventTypeRunStarted}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if called {
		t.Error("disabled publisher must not deliver events")
	}
}

func TestPublishAsync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})

	var mu sync.Mutex
	received := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		defer mu.Unlock()
		received++
	})

	for i := 0; i < 10; i++ {
		if err := ep.PublishRunFailed("run-1", "boom"); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	// Close drains the buffer before returning.
	ep.Close()

	mu.Lock()
	defer mu.Unlock()
	if received != 10 {
		t.Errorf("expected 10 delivered events, got %d", received)
	}
}

func TestPublishAsyncBufferFull(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 1})

	// Block the delivery goroutine so the buffer cannot drain.
	release := make(chan struct{})
	ep.Subscribe(func(Event) { <-release })

	dropped := false
	for i := 0; i < 20; i++ {
		if err := ep.Publish(Event{Type: EventTypeRunStarted}); err != nil {
			dropped = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !dropped {
		t.Error("expected an event to be dropped once the buffer filled")
	}

	close(release)
	ep.Close()
}

func TestPublishLevels(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})
	defer ep.Close()

	var mu sync.Mutex
	levels := map[string]string{}
	ep.Subscribe(func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		levels[event.Type] = event.Level
	})

	ep.PublishRunCompleted("run-1", "succeeded", time.Second)
	ep.PublishRunFailed("run-1", "quota exceeded")
	ep.PublishRunCancelled("run-1", 30*time.Second)
	ep.PublishGateTimeout("run-1", "service", 90*time.Second)
	ep.PublishUnitTransition("run-1", "service", "applying", "failed", "apply error")
	ep.PublishUnitReady("run-1", "service")
	ep.PublishUnitFailed("run-1", "service", "apply error")
	ep.PublishStabilityReached("run-1", "service")
	ep.PublishStabilityLost("run-1", "service", "health checks failing")

	mu.Lock()
	defer mu.Unlock()
	want := map[string]string{
		EventTypeRunCompleted:     EventLevelInfo,
		EventTypeRunFailed:        EventLevelError,
		EventTypeRunCancelled:     EventLevelWarning,
		EventTypeGateTimeout:      EventLevelError,
		EventTypeUnitTransition:   EventLevelError,
		EventTypeUnitReady:        EventLevelInfo,
		EventTypeUnitFailed:       EventLevelError,
		EventTypeStabilityReached: EventLevelInfo,
		EventTypeStabilityLost:    EventLevelError,
	}
	for eventType, level := range want {
		if levels[eventType] != level {
			t.Errorf("%s should be %s, got %s", eventType, level, levels[eventType])
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 4})
	ep.Close()
	ep.Close()

	var nilPublisher *EventPublisher
	nilPublisher.Close()
	if err := nilPublisher.Publish(Event{}); err != nil {
		t.Errorf("nil publisher must ignore publishes, got %v", err)
	}
}
