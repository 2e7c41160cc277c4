package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// PhaseExecutor walks an execution plan level by level, applying units and
// holding dependents behind each unit's readiness gate. Units within a level
// share no ordering constraint and run concurrently under a worker cap; the
// dependency guarantee is preserved because a level only starts after every
// unit in the previous level reached Ready.
//
// The executor fails fast: after the first failed unit, queued units of the
// same level are not started, units already in flight finish their own
// lifecycle, and no downstream unit starts. Apply operations are never
// retried here since they are not required to be idempotent; retries are a
// caller policy.
type PhaseExecutor struct {
	// maxParallel is the maximum number of units applied concurrently
	// within one level.
	maxParallel int

	gate    *ReadinessGate
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
	tracer  *telemetry.Tracer
}

// NewPhaseExecutor creates a phase executor. maxParallel values below one
// default to one, making execution strictly sequential.
func NewPhaseExecutor(maxParallel int, gate *ReadinessGate, logger *telemetry.Logger, metrics *telemetry.Metrics, events *telemetry.EventPublisher, tracer *telemetry.Tracer) *PhaseExecutor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	if gate == nil {
		gate = NewReadinessGate(logger, metrics)
	}
	return &PhaseExecutor{
		maxParallel: maxParallel,
		gate:        gate,
		logger:      logger,
		metrics:     metrics,
		events:      events,
		tracer:      tracer,
	}
}

// Execute runs the plan to completion or to the first failure, recording
// every state transition in the run record and every produced value in the
// bindings map. On failure the remaining units are left Pending in the
// record.
func (e *PhaseExecutor) Execute(ctx context.Context, plan *ExecutionPlan, record *RunRecord, bindings *Bindings) error {
	for level, ids := range plan.Levels {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.executeLevel(ctx, plan, record, bindings, ids); err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
	}
	return nil
}

// executeLevel applies all units of one level through a bounded worker pool
// and returns the first failure.
func (e *PhaseExecutor) executeLevel(ctx context.Context, plan *ExecutionPlan, record *RunRecord, bindings *Bindings, ids []string) error {
	workers := e.maxParallel
	if len(ids) < workers {
		workers = len(ids)
	}

	queue := make(chan string, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	var failed atomic.Bool
	errChan := make(chan error, len(ids))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				// Queued units do not start once a sibling has failed.
				if ctx.Err() != nil || failed.Load() {
					return
				}
				unit := plan.Unit(id)
				if !e.dependenciesReady(plan, record, id) {
					continue
				}
				if err := e.executeUnit(ctx, unit, record, bindings); err != nil {
					failed.Store(true)
					errChan <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// dependenciesReady reports whether every dependency of the unit is Ready.
// Dependencies always live in earlier levels, so this only fails after an
// earlier unit failed in a run that is already halting.
func (e *PhaseExecutor) dependenciesReady(plan *ExecutionPlan, record *RunRecord, id string) bool {
	for _, dep := range plan.Nodes[id].Dependencies {
		if record.StateOf(dep) != UnitStateReady {
			return false
		}
	}
	return true
}

// executeUnit drives one unit through its state machine:
// Pending -> AwaitingInputs -> Applying -> AwaitingReadiness -> Ready.
func (e *PhaseExecutor) executeUnit(ctx context.Context, unit *UnitDescriptor, record *RunRecord, bindings *Bindings) (err error) {
	logger := e.logger.WithRunID(record.RunID).WithUnitID(unit.ID)

	if e.tracer != nil {
		spanCtx, span := e.tracer.StartUnitSpan(ctx, record.RunID, unit.ID)
		ctx = spanCtx
		defer func() {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}

	e.transition(record, unit.ID, UnitStateAwaitingInputs, "")

	inputs, err := bindings.ResolveInputs(unit)
	if err != nil {
		e.fail(ctx, record, unit.ID, err)
		return err
	}

	e.transition(record, unit.ID, UnitStateApplying, "")
	logger.Info("applying")

	applyStart := time.Now()
	outputs, err := unit.Adapter.Apply(ctx, inputs)
	e.metrics.RecordPhaseDuration(unit.ID, "apply", time.Since(applyStart))
	if err != nil {
		applyErr := &ApplyError{UnitID: unit.ID, Err: err}
		e.fail(ctx, record, unit.ID, applyErr)
		return applyErr
	}

	for _, name := range unit.Outputs {
		if _, ok := outputs[name]; !ok {
			applyErr := &ApplyError{
				UnitID: unit.ID,
				Err:    fmt.Errorf("adapter did not produce declared output %q", name),
			}
			e.fail(ctx, record, unit.ID, applyErr)
			return applyErr
		}
	}

	e.transition(record, unit.ID, UnitStateAwaitingReadiness, "")
	logger.Info("awaiting readiness")

	gateStart := time.Now()
	if err := e.waitGate(ctx, unit, record.RunID, outputs); err != nil {
		e.metrics.RecordPhaseDuration(unit.ID, "gate", time.Since(gateStart))
		e.fail(ctx, record, unit.ID, err)
		return err
	}
	e.metrics.RecordPhaseDuration(unit.ID, "gate", time.Since(gateStart))

	// Outputs become visible to dependents only after the gate passes.
	for _, name := range unit.Outputs {
		if err := bindings.Put(unit.ID, name, outputs[name]); err != nil {
			e.fail(ctx, record, unit.ID, err)
			return err
		}
	}

	e.transition(record, unit.ID, UnitStateReady, "")
	e.metrics.RecordUnitExecuted(string(UnitStateReady))
	if e.events != nil {
		if pubErr := e.events.PublishUnitReady(record.RunID, unit.ID); pubErr != nil {
			logger.WithError(pubErr).Debug("failed to publish unit ready event")
		}
	}
	logger.Info("ready")
	return nil
}

// waitGate holds the unit behind its readiness gate, wrapping the wait in a
// span and publishing a gate timeout event when the budget elapses.
func (e *PhaseExecutor) waitGate(ctx context.Context, unit *UnitDescriptor, runID string, outputs map[string]string) (err error) {
	if e.tracer != nil {
		spanCtx, span := e.tracer.StartGateSpan(ctx, unit.ID)
		ctx = spanCtx
		defer func() {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}

	err = e.gate.Wait(ctx, unit, outputs)

	var timeoutErr *ReadinessTimeoutError
	if errors.As(err, &timeoutErr) && e.events != nil {
		if pubErr := e.events.PublishGateTimeout(runID, unit.ID, timeoutErr.Elapsed); pubErr != nil {
			e.logger.WithRunID(runID).WithError(pubErr).Debug("failed to publish gate timeout event")
		}
	}
	return err
}

// fail records a terminal state for the unit: Cancelled when the run's
// context was cancelled, Failed otherwise.
func (e *PhaseExecutor) fail(ctx context.Context, record *RunRecord, unitID string, cause error) {
	if ctx.Err() != nil {
		e.transition(record, unitID, UnitStateCancelled, "run cancelled")
		e.metrics.RecordUnitExecuted(string(UnitStateCancelled))
		return
	}
	e.transition(record, unitID, UnitStateFailed, cause.Error())
	e.metrics.RecordUnitExecuted(string(UnitStateFailed))
	if e.events != nil {
		if pubErr := e.events.PublishUnitFailed(record.RunID, unitID, cause.Error()); pubErr != nil {
			e.logger.WithRunID(record.RunID).WithError(pubErr).Debug("failed to publish unit failed event")
		}
	}
}

// transition appends a state change to the run record and publishes it.
func (e *PhaseExecutor) transition(record *RunRecord, unitID string, to UnitState, note string) {
	from := record.StateOf(unitID)
	if err := record.Append(unitID, to, note); err != nil {
		e.logger.WithRunID(record.RunID).WithError(err).Error("failed to record transition")
		return
	}
	if e.events != nil {
		if err := e.events.PublishUnitTransition(record.RunID, unitID, string(from), string(to), note); err != nil {
			e.logger.WithRunID(record.RunID).WithError(err).Debug("failed to publish transition event")
		}
	}
}
