package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gantryctl/gantry/pkg/orchestrator"
)

const validManifest = `
version: "1"
name: two-phase
max_parallel: 4
units:
  - id: registry
    outputs: [repository_url]
    adapter:
      kind: command
      config:
        apply: ./scripts/create-registry.sh
    gate:
      timeout: 2m
      interval: 1s
      max_interval: 10s
  - id: service
    depends_on: [registry]
    inputs:
      - name: image
        from: registry
        output: repository_url
    outputs: [endpoint]
    adapter:
      kind: command
      config:
        apply: ./scripts/deploy-service.sh
stability:
  unit: service
  probe:
    kind: httpcheck
    config:
      url: http://localhost:8080/health
  timeout: 5m
  interval: 15s
`

func TestParseValid(t *testing.T) {
	loader := NewLoader(nil)

	m, err := loader.Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("failed to parse manifest: %v", err)
	}

	if m.Name != "two-phase" {
		t.Errorf("expected name two-phase, got %s", m.Name)
	}
	if m.MaxParallel != 4 {
		t.Errorf("expected max_parallel 4, got %d", m.MaxParallel)
	}
	if len(m.Units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(m.Units))
	}

	registry := m.Units[0]
	if registry.ID != "registry" {
		t.Errorf("expected first unit registry, got %s", registry.ID)
	}
	if registry.Gate.Timeout.Std() != 2*time.Minute {
		t.Errorf("expected gate timeout 2m, got %s", registry.Gate.Timeout.Std())
	}

	service := m.Units[1]
	if len(service.Inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(service.Inputs))
	}
	if service.Inputs[0].From != "registry" || service.Inputs[0].Output != "repository_url" {
		t.Errorf("unexpected input reference %+v", service.Inputs[0])
	}

	if m.Stability == nil {
		t.Fatal("expected stability section")
	}
	if m.Stability.Unit != "service" {
		t.Errorf("expected stability unit service, got %s", m.Stability.Unit)
	}
	if m.Stability.Probe.Kind != "httpcheck" {
		t.Errorf("expected probe kind httpcheck, got %s", m.Stability.Probe.Kind)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			yaml:    "version: [",
			wantErr: "failed to parse YAML",
		},
		{
			name: "missing version",
			yaml: `
name: x
units:
  - id: a
    adapter:
      kind: command
`,
			wantErr: "validation failed",
		},
		{
			name: "unsupported version",
			yaml: `
version: "2"
name: x
units:
  - id: a
    adapter:
      kind: command
`,
			wantErr: "validation failed",
		},
		{
			name: "no units",
			yaml: `
version: "1"
name: x
units: []
`,
			wantErr: "validation failed",
		},
		{
			name: "missing adapter kind",
			yaml: `
version: "1"
name: x
units:
  - id: a
    adapter:
      config: {}
`,
			wantErr: "validation failed",
		},
		{
			name: "bad duration",
			yaml: `
version: "1"
name: x
units:
  - id: a
    adapter:
      kind: command
    gate:
      timeout: fast
`,
			wantErr: "invalid duration",
		},
		{
			name: "duplicate unit",
			yaml: `
version: "1"
name: x
units:
  - id: a
    adapter:
      kind: command
  - id: a
    adapter:
      kind: command
`,
			wantErr: "duplicate unit ID",
		},
		{
			name: "input from unknown unit",
			yaml: `
version: "1"
name: x
units:
  - id: a
    inputs:
      - name: v
        from: ghost
        output: out
    adapter:
      kind: command
`,
			wantErr: "unknown unit",
		},
		{
			name: "input from undeclared output",
			yaml: `
version: "1"
name: x
units:
  - id: a
    outputs: [real]
    adapter:
      kind: command
  - id: b
    depends_on: [a]
    inputs:
      - name: v
        from: a
        output: imaginary
    adapter:
      kind: command
`,
			wantErr: "undeclared output",
		},
		{
			name: "input without dependency edge",
			yaml: `
version: "1"
name: x
units:
  - id: a
    outputs: [out]
    adapter:
      kind: command
  - id: b
    inputs:
      - name: v
        from: a
        output: out
    adapter:
      kind: command
`,
			wantErr: "not in depends_on",
		},
		{
			name: "stability references unknown unit",
			yaml: `
version: "1"
name: x
units:
  - id: a
    adapter:
      kind: command
stability:
  unit: ghost
  probe:
    kind: httpcheck
`,
			wantErr: "unknown unit",
		},
	}

	loader := NewLoader(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	if err := os.WriteFile(path, []byte(validManifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	loader := NewLoader(nil)
	m, err := loader.Load(path)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}
	if m.Name != "two-phase" {
		t.Errorf("expected name two-phase, got %s", m.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(nil)
	if _, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

// fakeFactory records the adapter kinds it was asked for.
type fakeFactory struct {
	kinds []string
}

type nopAdapter struct{}

func (nopAdapter) Apply(_ context.Context, _ map[string]string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (nopAdapter) Verify(_ context.Context, _ map[string]string) (bool, error) {
	return true, nil
}

type nopProbe struct{}

func (nopProbe) Observe(_ context.Context, _ map[string]string) (orchestrator.Observation, error) {
	return orchestrator.Observation{State: orchestrator.StabilityStable}, nil
}

func (f *fakeFactory) NewAdapter(kind string, _ map[string]string) (orchestrator.Adapter, error) {
	f.kinds = append(f.kinds, kind)
	return nopAdapter{}, nil
}

func (f *fakeFactory) NewProbe(kind string, _ map[string]string) (orchestrator.StabilityProbe, error) {
	f.kinds = append(f.kinds, kind)
	return nopProbe{}, nil
}

func TestDescriptors(t *testing.T) {
	loader := NewLoader(nil)
	m, err := loader.Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("failed to parse manifest: %v", err)
	}

	factory := &fakeFactory{}
	descriptors, err := Descriptors(m, factory)
	if err != nil {
		t.Fatalf("failed to convert manifest: %v", err)
	}

	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].ID != "registry" || descriptors[1].ID != "service" {
		t.Errorf("declaration order not preserved: %s, %s", descriptors[0].ID, descriptors[1].ID)
	}
	if descriptors[1].Inputs[0].FromUnit != "registry" {
		t.Errorf("expected input from registry, got %s", descriptors[1].Inputs[0].FromUnit)
	}
	if descriptors[0].Gate.Timeout != 2*time.Minute {
		t.Errorf("expected gate timeout 2m, got %s", descriptors[0].Gate.Timeout)
	}
	if descriptors[0].Adapter == nil {
		t.Error("expected adapter to be bound")
	}

	policy, err := StabilityPolicy(m, factory)
	if err != nil {
		t.Fatalf("failed to convert stability policy: %v", err)
	}
	if policy == nil {
		t.Fatal("expected stability policy")
	}
	if policy.UnitID != "service" {
		t.Errorf("expected stability unit service, got %s", policy.UnitID)
	}
	if policy.Timeout != 5*time.Minute {
		t.Errorf("expected stability timeout 5m, got %s", policy.Timeout)
	}

	want := []string{"command", "command", "httpcheck"}
	if len(factory.kinds) != len(want) {
		t.Fatalf("expected %d factory calls, got %d", len(want), len(factory.kinds))
	}
	for i, kind := range want {
		if factory.kinds[i] != kind {
			t.Errorf("factory call %d: expected %s, got %s", i, kind, factory.kinds[i])
		}
	}
}

func TestStabilityPolicyAbsent(t *testing.T) {
	m := &Manifest{Version: "1", Name: "x", Units: []Unit{{ID: "a", Adapter: AdapterSpec{Kind: "command"}}}}

	policy, err := StabilityPolicy(m, &fakeFactory{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy != nil {
		t.Errorf("expected nil policy, got %+v", policy)
	}
}
