package manifest

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Manifest is the top-level deployment declaration.
type Manifest struct {
	// Version is the manifest schema version.
	Version string `yaml:"version" validate:"required,eq=1"`

	// Name identifies the deployment.
	Name string `yaml:"name" validate:"required"`

	// MaxParallel caps concurrent applies within one dependency level.
	MaxParallel int `yaml:"max_parallel,omitempty" validate:"gte=0"`

	// Units declares the deployable units in declaration order. The order
	// is significant: units with no ordering constraint between them are
	// executed in declaration order.
	Units []Unit `yaml:"units" validate:"required,min=1,dive"`

	// Stability optionally configures post-deployment stability monitoring.
	Stability *Stability `yaml:"stability,omitempty"`
}

// Unit declares one deployable unit.
type Unit struct {
	// ID is the unique unit identifier.
	ID string `yaml:"id" validate:"required"`

	// DependsOn lists unit IDs that must be ready before this unit starts.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Inputs declares values consumed from dependency outputs.
	Inputs []Input `yaml:"inputs,omitempty" validate:"dive"`

	// Outputs names the values this unit produces.
	Outputs []string `yaml:"outputs,omitempty"`

	// Adapter selects and configures the adapter that applies this unit.
	Adapter AdapterSpec `yaml:"adapter" validate:"required"`

	// Gate bounds the unit's readiness gate. Zero fields use defaults.
	Gate GateSpec `yaml:"gate,omitempty"`
}

// Input declares one consumed binding.
type Input struct {
	// Name is the key the adapter receives the value under.
	Name string `yaml:"name" validate:"required"`

	// From is the ID of the producing unit.
	From string `yaml:"from" validate:"required"`

	// Output is the output name declared by the producing unit.
	Output string `yaml:"output" validate:"required"`
}

// AdapterSpec selects an adapter implementation by kind.
type AdapterSpec struct {
	// Kind names the adapter implementation, for example "command".
	Kind string `yaml:"kind" validate:"required"`

	// Config holds adapter-specific settings.
	Config map[string]string `yaml:"config,omitempty"`
}

// GateSpec bounds a unit's readiness gate.
type GateSpec struct {
	// Timeout is the maximum total time to wait for readiness.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Interval is the initial delay between verification polls.
	Interval Duration `yaml:"interval,omitempty"`

	// MaxInterval caps the exponential backoff between polls.
	MaxInterval Duration `yaml:"max_interval,omitempty"`
}

// Stability configures the post-deployment stability monitor.
type Stability struct {
	// Unit is the unit whose steady state is monitored. Empty selects the
	// last unit of the execution plan.
	Unit string `yaml:"unit,omitempty"`

	// Probe selects and configures the stability probe.
	Probe AdapterSpec `yaml:"probe" validate:"required"`

	// Timeout is the maximum time to wait for a stable observation.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Interval is the delay between observations.
	Interval Duration `yaml:"interval,omitempty"`
}
