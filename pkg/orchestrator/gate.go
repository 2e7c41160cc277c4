package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// ReadinessGate blocks a unit's dependents until the unit's effect is
// externally observable. It exists because an apply operation may return
// success before the artifact it produced is visible to readers: a
// downstream unit that trusts apply completion alone fails
// nondeterministically. The gate polls the unit's verification predicate
// with capped exponential backoff until it reports ready, the per-unit
// budget elapses, or an unrecoverable error is observed.
type ReadinessGate struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewReadinessGate creates a readiness gate. A nil logger falls back to the
// default logger; nil metrics disable recording.
func NewReadinessGate(logger *telemetry.Logger, metrics *telemetry.Metrics) *ReadinessGate {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &ReadinessGate{
		logger:  logger,
		metrics: metrics,
	}
}

// Wait polls the unit's Verify until ready. It returns nil when the unit's
// effect is visible, ReadinessTimeoutError when the budget elapses, the
// context error on cancellation, and the verify error itself when it is
// classified permanent.
func (g *ReadinessGate) Wait(ctx context.Context, unit *UnitDescriptor, outputs map[string]string) error {
	policy := unit.Gate.withDefaults()
	start := time.Now()
	deadline := start.Add(policy.Timeout)
	interval := policy.Interval

	logger := g.logger.WithUnitID(unit.ID)
	logger.Debugf("readiness gate open, budget %s", policy.Timeout)

	polls := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		polls++
		ready, err := unit.Adapter.Verify(ctx, outputs)
		switch {
		case err != nil && IsPermanent(err):
			g.metrics.RecordGatePoll(unit.ID, "error")
			return fmt.Errorf("verify unit %s: %w", unit.ID, err)
		case err != nil:
			// Transient verify errors are expected while the external
			// system converges; keep polling within budget.
			g.metrics.RecordGatePoll(unit.ID, "error")
			logger.WithError(err).Debug("verify failed, retrying")
		case ready:
			elapsed := time.Since(start)
			g.metrics.RecordGatePoll(unit.ID, "ready")
			g.metrics.RecordGateWait(unit.ID, elapsed)
			logger.Debugf("ready after %d polls in %s", polls, elapsed.Round(time.Millisecond))
			return nil
		default:
			g.metrics.RecordGatePoll(unit.ID, "not_ready")
		}

		now := time.Now()
		if !now.Add(interval).Before(deadline) {
			// The next poll would land past the deadline; wait out the
			// remaining budget only if a poll can still fit.
			remaining := deadline.Sub(now)
			if remaining <= 0 {
				break
			}
			interval = remaining
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}

		// Capped exponential backoff between polls.
		interval *= 2
		if interval > policy.MaxInterval {
			interval = policy.MaxInterval
		}
	}

	elapsed := time.Since(start)
	g.metrics.RecordGateTimeout(unit.ID)
	return &ReadinessTimeoutError{
		UnitID:  unit.ID,
		Elapsed: elapsed,
		Budget:  policy.Timeout,
	}
}
