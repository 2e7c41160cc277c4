package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// eventTypeLog captures the types of published events.
type eventTypeLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventTypeLog) subscribe(publisher *telemetry.EventPublisher) {
	publisher.Subscribe(func(event telemetry.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.types = append(l.types, event.Type)
	})
}

func (l *eventTypeLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.types {
		if t == eventType {
			n++
		}
	}
	return n
}

// memoryStore captures persistence calls for assertions.
type memoryStore struct {
	mu          sync.Mutex
	created     []string
	finished    map[string]RunStatus
	errMsgs     map[string]string
	transitions []Transition
	bindings    map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		finished: make(map[string]RunStatus),
		errMsgs:  make(map[string]string),
		bindings: make(map[string]string),
	}
}

func (s *memoryStore) CreateRun(_ context.Context, record *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, record.RunID)
	return nil
}

func (s *memoryStore) FinishRun(_ context.Context, runID string, status RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[runID] = status
	s.errMsgs[runID] = errMsg
	return nil
}

func (s *memoryStore) AppendTransition(_ context.Context, _ string, t Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *memoryStore) PutBinding(_ context.Context, _, unitID, output, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[unitID+"."+output] = value
	return nil
}

func chainUnits() []UnitDescriptor {
	return []UnitDescriptor{
		{
			ID:      "registry",
			Outputs: []string{"repository_url"},
			Gate:    fastGate(),
			Adapter: &stubAdapter{
				applyFn: func(context.Context, map[string]string) (map[string]string, error) {
					return map[string]string{"repository_url": "example.com/app"}, nil
				},
			},
		},
		{
			ID:        "service",
			DependsOn: []string{"registry"},
			Inputs:    []InputRef{{Name: "image", FromUnit: "registry", Output: "repository_url"}},
			Outputs:   []string{"endpoint"},
			Gate:      fastGate(),
			Adapter: &stubAdapter{
				applyFn: func(_ context.Context, inputs map[string]string) (map[string]string, error) {
					return map[string]string{"endpoint": "http://" + inputs["image"]}, nil
				},
			},
		},
	}
}

func TestRunSucceeds(t *testing.T) {
	store := newMemoryStore()
	orch := New(Config{Store: store})

	record, bindings, err := orch.Run(context.Background(), chainUnits(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if record.Status != RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", record.Status)
	}
	if record.RunID == "" {
		t.Error("expected a run ID")
	}
	if value, ok := bindings.Get("service", "endpoint"); !ok || value != "http://example.com/app" {
		t.Errorf("expected endpoint binding, got %q (ok=%v)", value, ok)
	}

	summary := record.Summary()
	if summary.Ready != 2 || summary.Failed != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}

	// Persistence captured the full run.
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.created) != 1 || store.created[0] != record.RunID {
		t.Errorf("expected run persisted at start, got %v", store.created)
	}
	if store.finished[record.RunID] != RunStatusSucceeded {
		t.Errorf("expected succeeded persisted, got %s", store.finished[record.RunID])
	}
	if store.errMsgs[record.RunID] != "" {
		t.Errorf("expected no error message, got %q", store.errMsgs[record.RunID])
	}
	// Two units, four transitions each.
	if len(store.transitions) != 8 {
		t.Errorf("expected 8 transitions persisted, got %d", len(store.transitions))
	}
	if store.bindings["registry.repository_url"] != "example.com/app" {
		t.Errorf("expected registry binding persisted, got %v", store.bindings)
	}
}

func TestRunPlanErrorReturnsBeforeExecution(t *testing.T) {
	orch := New(Config{})

	units := []UnitDescriptor{
		{ID: "a", DependsOn: []string{"b"}, Adapter: &stubAdapter{}},
		{ID: "b", DependsOn: []string{"a"}, Adapter: &stubAdapter{}},
	}

	record, bindings, err := orch.Run(context.Background(), units, nil)
	var cycleErr *CyclicDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	if record != nil || bindings != nil {
		t.Error("expected no record or bindings when the plan is invalid")
	}
}

func TestRunFailureStatus(t *testing.T) {
	store := newMemoryStore()
	orch := New(Config{Store: store})

	units := []UnitDescriptor{{
		ID:   "registry",
		Gate: fastGate(),
		Adapter: &stubAdapter{
			applyFn: func(context.Context, map[string]string) (map[string]string, error) {
				return nil, fmt.Errorf("quota exceeded")
			},
		},
	}}

	record, _, err := orch.Run(context.Background(), units, nil)
	if err == nil {
		t.Fatal("expected run error, got nil")
	}
	if record.Status != RunStatusFailed {
		t.Errorf("expected failed, got %s", record.Status)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.finished[record.RunID] != RunStatusFailed {
		t.Errorf("expected failed persisted, got %s", store.finished[record.RunID])
	}
	if store.errMsgs[record.RunID] == "" {
		t.Error("expected persisted error message")
	}
}

func TestRunCancelledStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	orch := New(Config{})

	units := []UnitDescriptor{{
		ID:   "registry",
		Gate: GatePolicy{Timeout: 10 * time.Second, Interval: 5 * time.Millisecond},
		Adapter: &stubAdapter{
			verifyFn: func(context.Context, map[string]string) (bool, error) {
				return false, nil
			},
		},
	}}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	record, _, err := orch.Run(ctx, units, nil)
	if err == nil {
		t.Fatal("expected run error, got nil")
	}
	if record.Status != RunStatusCancelled {
		t.Errorf("expected cancelled, got %s", record.Status)
	}
	if state := record.StateOf("registry"); state != UnitStateCancelled {
		t.Errorf("expected registry cancelled, got %s", state)
	}
}

func TestRunWatchesFinalUnitStability(t *testing.T) {
	probe := &stubProbe{observations: []Observation{
		{State: StabilityConverging},
		{State: StabilityStable},
	}}
	orch := New(Config{})

	policy := &StabilityPolicy{Probe: probe, Timeout: time.Second, Interval: 5 * time.Millisecond}
	record, _, err := orch.Run(context.Background(), chainUnits(), policy)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if record.Status != RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", record.Status)
	}
	if probe.calls.Load() < 2 {
		t.Errorf("expected the probe to be consulted, got %d calls", probe.calls.Load())
	}
}

func TestRunStabilityRegressionFailsRun(t *testing.T) {
	probe := &stubProbe{observations: []Observation{{State: StabilityRolledBack}}}
	orch := New(Config{})

	policy := &StabilityPolicy{Probe: probe, Timeout: time.Second, Interval: 5 * time.Millisecond}
	record, _, err := orch.Run(context.Background(), chainUnits(), policy)

	var unstableErr *DeploymentUnstableError
	if !errors.As(err, &unstableErr) {
		t.Fatalf("expected DeploymentUnstableError, got %v", err)
	}
	if unstableErr.UnitID != "service" {
		t.Errorf("expected the final unit monitored, got %s", unstableErr.UnitID)
	}
	if record.Status != RunStatusFailed {
		t.Errorf("expected failed, got %s", record.Status)
	}
}

func TestRunStabilityUnknownUnit(t *testing.T) {
	probe := &stubProbe{observations: []Observation{{State: StabilityStable}}}
	orch := New(Config{})

	policy := &StabilityPolicy{UnitID: "ghost", Probe: probe}
	_, _, err := orch.Run(context.Background(), chainUnits(), policy)

	var unknownErr *UnknownUnitError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownUnitError, got %v", err)
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer publisher.Close()
	log := &eventTypeLog{}
	log.subscribe(publisher)

	probe := &stubProbe{observations: []Observation{{State: StabilityStable}}}
	orch := New(Config{Events: publisher})

	policy := &StabilityPolicy{Probe: probe, Timeout: time.Second, Interval: 5 * time.Millisecond}
	if _, _, err := orch.Run(context.Background(), chainUnits(), policy); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for eventType, want := range map[string]int{
		telemetry.EventTypeRunStarted:       1,
		telemetry.EventTypeUnitReady:        2,
		telemetry.EventTypeStabilityReached: 1,
		telemetry.EventTypeRunCompleted:     1,
		telemetry.EventTypeRunFailed:        0,
		telemetry.EventTypeUnitFailed:       0,
	} {
		if got := log.count(eventType); got != want {
			t.Errorf("expected %d %s events, got %d", want, eventType, got)
		}
	}
}

func TestRunFailurePublishesUnitFailed(t *testing.T) {
	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer publisher.Close()
	log := &eventTypeLog{}
	log.subscribe(publisher)

	orch := New(Config{Events: publisher})
	units := []UnitDescriptor{{
		ID:   "registry",
		Gate: fastGate(),
		Adapter: &stubAdapter{
			applyFn: func(context.Context, map[string]string) (map[string]string, error) {
				return nil, fmt.Errorf("quota exceeded")
			},
		},
	}}

	if _, _, err := orch.Run(context.Background(), units, nil); err == nil {
		t.Fatal("expected run error, got nil")
	}

	if got := log.count(telemetry.EventTypeUnitFailed); got != 1 {
		t.Errorf("expected 1 unit failed event, got %d", got)
	}
	if got := log.count(telemetry.EventTypeRunFailed); got != 1 {
		t.Errorf("expected 1 run failed event, got %d", got)
	}
}

func TestRunCancelledPublishesEvent(t *testing.T) {
	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer publisher.Close()
	log := &eventTypeLog{}
	log.subscribe(publisher)

	ctx, cancel := context.WithCancel(context.Background())
	orch := New(Config{Events: publisher})

	units := []UnitDescriptor{{
		ID:   "registry",
		Gate: GatePolicy{Timeout: 10 * time.Second, Interval: 5 * time.Millisecond},
		Adapter: &stubAdapter{
			verifyFn: func(context.Context, map[string]string) (bool, error) {
				return false, nil
			},
		},
	}}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	if _, _, err := orch.Run(ctx, units, nil); err == nil {
		t.Fatal("expected run error, got nil")
	}

	if got := log.count(telemetry.EventTypeRunCancelled); got != 1 {
		t.Errorf("expected 1 run cancelled event, got %d", got)
	}
	if got := log.count(telemetry.EventTypeRunFailed); got != 0 {
		t.Errorf("expected no run failed event, got %d", got)
	}
}

func TestRunStabilityLostPublishesEvent(t *testing.T) {
	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer publisher.Close()
	log := &eventTypeLog{}
	log.subscribe(publisher)

	probe := &stubProbe{observations: []Observation{{State: StabilityRolledBack}}}
	orch := New(Config{Events: publisher})

	policy := &StabilityPolicy{Probe: probe, Timeout: time.Second, Interval: 5 * time.Millisecond}
	if _, _, err := orch.Run(context.Background(), chainUnits(), policy); err == nil {
		t.Fatal("expected run error, got nil")
	}

	if got := log.count(telemetry.EventTypeStabilityLost); got != 1 {
		t.Errorf("expected 1 stability lost event, got %d", got)
	}
	if got := log.count(telemetry.EventTypeStabilityReached); got != 0 {
		t.Errorf("expected no stability reached event, got %d", got)
	}
}

func TestRunWithTracer(t *testing.T) {
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "gantry", "test", "test")
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			t.Errorf("tracer shutdown failed: %v", err)
		}
	}()

	probe := &stubProbe{observations: []Observation{{State: StabilityStable}}}
	orch := New(Config{Tracer: tracer})

	policy := &StabilityPolicy{Probe: probe, Timeout: time.Second, Interval: 5 * time.Millisecond}
	record, _, err := orch.Run(context.Background(), chainUnits(), policy)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if record.Status != RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", record.Status)
	}
}

func TestPlanOnly(t *testing.T) {
	orch := New(Config{})
	plan, err := orch.Plan(chainUnits())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if plan.Depth != 2 {
		t.Errorf("expected depth 2, got %d", plan.Depth)
	}
}

func TestIsHaltingError(t *testing.T) {
	halting := []error{
		&ApplyError{UnitID: "a", Err: fmt.Errorf("boom")},
		&ReadinessTimeoutError{UnitID: "a"},
		&DeploymentUnstableError{UnitID: "a"},
		&MissingBindingError{UnitID: "a"},
		fmt.Errorf("level 0: %w", &ApplyError{UnitID: "a", Err: fmt.Errorf("boom")}),
	}
	for _, err := range halting {
		if !IsHaltingError(err) {
			t.Errorf("expected %v to be halting", err)
		}
	}

	nonHalting := []error{
		&CyclicDependencyError{Cycle: []string{"a", "a"}},
		&UnknownDependencyError{UnitID: "a", MissingID: "b"},
		fmt.Errorf("plain"),
		nil,
	}
	for _, err := range nonHalting {
		if IsHaltingError(err) {
			t.Errorf("expected %v to be non-halting", err)
		}
	}
}
