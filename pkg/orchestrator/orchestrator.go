package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// RunStore persists run records for diagnostics and later inspection.
// Persistence failures are logged, never fatal: losing the record of a run
// must not fail the deployment itself.
type RunStore interface {
	// CreateRun persists a new run in its initial state.
	CreateRun(ctx context.Context, record *RunRecord) error

	// FinishRun records the run's terminal status and error, if any.
	FinishRun(ctx context.Context, runID string, status RunStatus, errMsg string) error

	// AppendTransition appends one phase transition to the run's log.
	AppendTransition(ctx context.Context, runID string, t Transition) error

	// PutBinding persists one produced output binding.
	PutBinding(ctx context.Context, runID, unitID, output, value string) error
}

// Config configures an Orchestrator. The zero value is usable: execution is
// sequential and telemetry falls back to defaults.
type Config struct {
	// MaxParallel caps concurrent applies within one plan level.
	// Values below one mean sequential execution.
	MaxParallel int

	// Logger is the structured logger. Nil falls back to the default.
	Logger *telemetry.Logger

	// Metrics records orchestration metrics. Nil disables recording.
	Metrics *telemetry.Metrics

	// Events publishes run and unit lifecycle events. Nil disables.
	Events *telemetry.EventPublisher

	// Tracer emits spans per run and per unit phase. Nil disables.
	Tracer *telemetry.Tracer

	// Store persists run records. Nil disables persistence.
	Store RunStore
}

// Orchestrator resolves a declared unit graph and executes it in dependency
// order with readiness gates between phases.
type Orchestrator struct {
	config   Config
	logger   *telemetry.Logger
	executor *PhaseExecutor
	monitor  *StabilityMonitor
}

// New creates an orchestrator from the given configuration.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	logger = logger.NewComponentLogger("orchestrator")

	gate := NewReadinessGate(logger, cfg.Metrics)

	return &Orchestrator{
		config:   cfg,
		logger:   logger,
		executor: NewPhaseExecutor(cfg.MaxParallel, gate, logger, cfg.Metrics, cfg.Events, cfg.Tracer),
		monitor:  NewStabilityMonitor(logger, cfg.Metrics),
	}
}

// Plan resolves the declared units into an execution plan without running
// anything. Graph construction errors (cycles, dangling references) are
// reported here.
func (o *Orchestrator) Plan(units []UnitDescriptor) (*ExecutionPlan, error) {
	return NewPlanBuilder().Build(units)
}

// Run resolves and executes the declared units. It returns the run record,
// the bindings produced by ready units, and the first error that halted the
// run. Graph construction errors are returned before any unit runs. The
// context cancels in-flight polling; applied effects are left in place.
func (o *Orchestrator) Run(ctx context.Context, units []UnitDescriptor, stability *StabilityPolicy) (*RunRecord, *Bindings, error) {
	plan, err := o.Plan(units)
	if err != nil {
		return nil, nil, err
	}

	record := NewRunRecord(uuid.New().String(), plan)
	bindings := NewBindings()
	logger := o.logger.WithRunID(record.RunID)

	var runCtx context.Context = ctx
	var endSpan func(error)
	if o.config.Tracer != nil {
		spanCtx, span := o.config.Tracer.StartRunSpan(ctx, record.RunID)
		runCtx = spanCtx
		endSpan = func(runErr error) {
			if runErr != nil {
				telemetry.RecordError(span, runErr)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}
	}

	o.config.Metrics.RecordRunStarted()
	if o.config.Events != nil {
		if pubErr := o.config.Events.PublishRunStarted(record.RunID, len(units)); pubErr != nil {
			logger.WithError(pubErr).Debug("failed to publish run started event")
		}
	}
	o.persistCreate(ctx, record)

	record.setStatus(RunStatusRunning)
	logger.Infof("run started, %d units across %d levels", len(units), plan.Depth)

	runErr := o.executor.Execute(runCtx, plan, record, bindings)

	if runErr == nil && stability != nil && stability.Probe != nil {
		runErr = o.watchStability(runCtx, plan, bindings, record, *stability)
	}

	status := RunStatusSucceeded
	switch {
	case ctx.Err() != nil:
		status = RunStatusCancelled
	case runErr != nil:
		status = RunStatusFailed
	}
	record.finish(status)

	o.config.Metrics.RecordRunCompleted(string(status), record.Duration)
	o.publishCompletion(record, runErr)
	o.persistFinish(record, bindings, runErr)

	if endSpan != nil {
		endSpan(runErr)
	}

	if runErr != nil {
		logger.WithError(runErr).Errorf("run halted with status %s", status)
		return record, bindings, runErr
	}

	logger.Infof("run succeeded in %s", record.Duration.Round(time.Millisecond))
	return record, bindings, nil
}

// watchStability monitors the configured (or final) unit's steady state.
func (o *Orchestrator) watchStability(ctx context.Context, plan *ExecutionPlan, bindings *Bindings, record *RunRecord, policy StabilityPolicy) error {
	unit := plan.FinalUnit()
	if policy.UnitID != "" {
		unit = plan.Unit(policy.UnitID)
		if unit == nil {
			return &UnknownUnitError{UnitID: policy.UnitID}
		}
	}
	if unit == nil {
		return nil
	}

	outputs := make(map[string]string, len(unit.Outputs))
	for _, name := range unit.Outputs {
		if value, ok := bindings.Get(unit.ID, name); ok {
			outputs[name] = value
		}
	}

	watchCtx := ctx
	if o.config.Tracer != nil {
		spanCtx, stabilitySpan := o.config.Tracer.StartStabilitySpan(ctx, unit.ID)
		watchCtx = spanCtx
		defer stabilitySpan.End()
	}

	watchErr := o.monitor.Watch(watchCtx, unit.ID, outputs, policy)
	o.publishStabilityOutcome(record.RunID, unit.ID, watchErr)
	return watchErr
}

// publishStabilityOutcome publishes the stability watch result.
func (o *Orchestrator) publishStabilityOutcome(runID, unitID string, watchErr error) {
	if o.config.Events == nil {
		return
	}
	var pubErr error
	var unstableErr *DeploymentUnstableError
	switch {
	case watchErr == nil:
		pubErr = o.config.Events.PublishStabilityReached(runID, unitID)
	case errors.As(watchErr, &unstableErr):
		pubErr = o.config.Events.PublishStabilityLost(runID, unitID, watchErr.Error())
	}
	if pubErr != nil {
		o.logger.WithRunID(runID).WithError(pubErr).Debug("failed to publish stability event")
	}
}

// publishCompletion publishes the terminal run event.
func (o *Orchestrator) publishCompletion(record *RunRecord, runErr error) {
	if o.config.Events == nil {
		return
	}
	var pubErr error
	switch {
	case record.Status == RunStatusCancelled:
		pubErr = o.config.Events.PublishRunCancelled(record.RunID, record.Duration)
	case runErr != nil:
		pubErr = o.config.Events.PublishRunFailed(record.RunID, runErr.Error())
	default:
		pubErr = o.config.Events.PublishRunCompleted(record.RunID, string(record.Status), record.Duration)
	}
	if pubErr != nil {
		o.logger.WithRunID(record.RunID).WithError(pubErr).Debug("failed to publish run completion event")
	}
}

// persistCreate saves the initial run record.
func (o *Orchestrator) persistCreate(ctx context.Context, record *RunRecord) {
	if o.config.Store == nil {
		return
	}
	if err := o.config.Store.CreateRun(ctx, record); err != nil {
		o.logger.WithRunID(record.RunID).WithError(err).Warn("failed to persist run")
	}
}

// persistFinish saves the transition log, bindings, and terminal status.
// A fresh context is used so persistence survives run cancellation.
func (o *Orchestrator) persistFinish(record *RunRecord, bindings *Bindings, runErr error) {
	if o.config.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := o.logger.WithRunID(record.RunID)
	for _, t := range record.Transitions() {
		if err := o.config.Store.AppendTransition(ctx, record.RunID, t); err != nil {
			logger.WithError(err).Warn("failed to persist transition")
		}
	}
	for key, value := range bindings.Snapshot() {
		if err := o.config.Store.PutBinding(ctx, record.RunID, key.UnitID, key.Output, value); err != nil {
			logger.WithError(err).Warn("failed to persist binding")
		}
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := o.config.Store.FinishRun(ctx, record.RunID, record.Status, errMsg); err != nil {
		logger.WithError(err).Warn("failed to persist run status")
	}
}

// IsHaltingError reports whether the error is one of the execution-time
// failures that halts a run (as opposed to graph construction errors).
func IsHaltingError(err error) bool {
	var applyErr *ApplyError
	var timeoutErr *ReadinessTimeoutError
	var unstableErr *DeploymentUnstableError
	var bindingErr *MissingBindingError
	return errors.As(err, &applyErr) || errors.As(err, &timeoutErr) ||
		errors.As(err, &unstableErr) || errors.As(err, &bindingErr)
}
