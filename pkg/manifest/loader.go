package manifest

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gantryctl/gantry/pkg/telemetry"
)

// Loader loads and validates deployment manifests.
type Loader struct {
	logger   *telemetry.Logger
	validate *validator.Validate
}

// NewLoader creates a new manifest loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Loader{
		logger:   logger.NewComponentLogger("manifest-loader"),
		validate: validator.New(),
	}
}

// Load reads, parses, and validates the manifest at path.
func (l *Loader) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	l.logger.WithField("path", path).Debugf("manifest %q loaded, %d units", m.Name, len(m.Units))
	return m, nil
}

// Parse parses and validates a manifest from raw YAML.
func (l *Loader) Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := checkReferences(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

// checkReferences verifies that input references name declared units and
// declared outputs. Dependency cycles are left to the plan builder, which
// reports the full cycle path.
func checkReferences(m *Manifest) error {
	units := make(map[string]*Unit, len(m.Units))
	for i := range m.Units {
		unit := &m.Units[i]
		if _, exists := units[unit.ID]; exists {
			return fmt.Errorf("duplicate unit ID %q", unit.ID)
		}
		units[unit.ID] = unit
	}

	for i := range m.Units {
		unit := &m.Units[i]
		for _, input := range unit.Inputs {
			producer, ok := units[input.From]
			if !ok {
				return fmt.Errorf("unit %q: input %q references unknown unit %q", unit.ID, input.Name, input.From)
			}
			if !declaresOutput(producer, input.Output) {
				return fmt.Errorf("unit %q: input %q references undeclared output %q of unit %q", unit.ID, input.Name, input.Output, input.From)
			}
			if !dependsOn(unit, input.From) {
				return fmt.Errorf("unit %q: input %q references unit %q which is not in depends_on", unit.ID, input.Name, input.From)
			}
		}
	}

	if m.Stability != nil && m.Stability.Unit != "" {
		if _, ok := units[m.Stability.Unit]; !ok {
			return fmt.Errorf("stability: unknown unit %q", m.Stability.Unit)
		}
	}

	return nil
}

func declaresOutput(unit *Unit, output string) bool {
	for _, name := range unit.Outputs {
		if name == output {
			return true
		}
	}
	return false
}

func dependsOn(unit *Unit, id string) bool {
	for _, dep := range unit.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}
