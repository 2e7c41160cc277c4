package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// DefaultStabilityTimeout bounds the stability watch when the policy
// declares no timeout.
const DefaultStabilityTimeout = 10 * time.Minute

// DefaultStabilityInterval is the delay between stability observations when
// the policy declares none.
const DefaultStabilityInterval = 10 * time.Second

// StabilityMonitor confirms that the final deployed unit reaches and holds
// its desired steady state. It polls a StabilityProbe until the workload is
// stable, the budget elapses, or a regression is observed. Remediation is
// the platform's concern: a platform-initiated rollback is surfaced as a
// failed run, never acted upon.
type StabilityMonitor struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewStabilityMonitor creates a stability monitor. A nil logger falls back
// to the default logger; nil metrics disable recording.
func NewStabilityMonitor(logger *telemetry.Logger, metrics *telemetry.Metrics) *StabilityMonitor {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &StabilityMonitor{
		logger:  logger,
		metrics: metrics,
	}
}

// Watch polls the probe until the unit is stable. It returns nil on a stable
// observation, DeploymentUnstableError on regression or timeout (carrying
// the last observed state), the context error on cancellation, and the probe
// error itself when it is classified permanent.
func (m *StabilityMonitor) Watch(ctx context.Context, unitID string, outputs map[string]string, policy StabilityPolicy) error {
	if policy.Probe == nil {
		return nil
	}

	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = DefaultStabilityTimeout
	}
	interval := policy.Interval
	if interval <= 0 {
		interval = DefaultStabilityInterval
	}

	logger := m.logger.WithUnitID(unitID)
	logger.Infof("watching stability, budget %s", timeout)

	deadline := time.Now().Add(timeout)
	last := Observation{State: StabilityConverging}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		obs, err := policy.Probe.Observe(ctx, outputs)
		switch {
		case err != nil && IsPermanent(err):
			return fmt.Errorf("observe unit %s: %w", unitID, err)
		case err != nil:
			logger.WithError(err).Debug("stability observation failed, retrying")
		default:
			last = obs
			m.metrics.RecordStabilityObservation(unitID, string(obs.State))
			switch obs.State {
			case StabilityStable:
				m.metrics.RecordStabilityOutcome("stable")
				logger.Info("workload stable")
				return nil
			case StabilityRolledBack, StabilityDegraded:
				m.metrics.RecordStabilityOutcome(string(obs.State))
				return &DeploymentUnstableError{
					UnitID:    unitID,
					LastState: obs.State,
					Detail:    obs.Detail,
				}
			}
		}

		if !time.Now().Add(interval).Before(deadline) {
			break
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.metrics.RecordStabilityOutcome("timeout")
	return &DeploymentUnstableError{
		UnitID:    unitID,
		LastState: last.State,
		Detail:    last.Detail,
	}
}
