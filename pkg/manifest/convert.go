package manifest

import (
	"fmt"

	"github.com/gantryctl/gantry/pkg/orchestrator"
)

// AdapterFactory constructs adapters and probes from manifest specs. The
// adapters package provides the default registry-backed implementation.
type AdapterFactory interface {
	// NewAdapter builds the adapter for a unit.
	NewAdapter(kind string, config map[string]string) (orchestrator.Adapter, error)

	// NewProbe builds a stability probe.
	NewProbe(kind string, config map[string]string) (orchestrator.StabilityProbe, error)
}

// Descriptors converts the manifest's units into orchestrator descriptors,
// binding each unit to an adapter from the factory. Declaration order is
// preserved.
func Descriptors(m *Manifest, factory AdapterFactory) ([]orchestrator.UnitDescriptor, error) {
	descriptors := make([]orchestrator.UnitDescriptor, 0, len(m.Units))

	for i := range m.Units {
		unit := &m.Units[i]

		adapter, err := factory.NewAdapter(unit.Adapter.Kind, unit.Adapter.Config)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", unit.ID, err)
		}

		inputs := make([]orchestrator.InputRef, 0, len(unit.Inputs))
		for _, input := range unit.Inputs {
			inputs = append(inputs, orchestrator.InputRef{
				Name:     input.Name,
				FromUnit: input.From,
				Output:   input.Output,
			})
		}

		descriptors = append(descriptors, orchestrator.UnitDescriptor{
			ID:        unit.ID,
			DependsOn: unit.DependsOn,
			Inputs:    inputs,
			Outputs:   unit.Outputs,
			Adapter:   adapter,
			Gate: orchestrator.GatePolicy{
				Timeout:     unit.Gate.Timeout.Std(),
				Interval:    unit.Gate.Interval.Std(),
				MaxInterval: unit.Gate.MaxInterval.Std(),
			},
		})
	}

	return descriptors, nil
}

// StabilityPolicy converts the manifest's stability section, if present, into
// an orchestrator policy with a probe from the factory.
func StabilityPolicy(m *Manifest, factory AdapterFactory) (*orchestrator.StabilityPolicy, error) {
	if m.Stability == nil {
		return nil, nil
	}

	probe, err := factory.NewProbe(m.Stability.Probe.Kind, m.Stability.Probe.Config)
	if err != nil {
		return nil, fmt.Errorf("stability probe: %w", err)
	}

	return &orchestrator.StabilityPolicy{
		UnitID:   m.Stability.Unit,
		Probe:    probe,
		Timeout:  m.Stability.Timeout.Std(),
		Interval: m.Stability.Interval.Std(),
	}, nil
}
