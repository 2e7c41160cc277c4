package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gantryctl/gantry/pkg/orchestrator"
)

// Factory constructs an adapter from its manifest configuration.
type Factory func(config map[string]string) (orchestrator.Adapter, error)

// ProbeFactory constructs a stability probe from its manifest configuration.
type ProbeFactory func(config map[string]string) (orchestrator.StabilityProbe, error)

// Registry maps adapter kinds to factories. It implements the manifest
// package's AdapterFactory interface.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Factory
	probes   map[string]ProbeFactory
}

// NewRegistry creates a registry with the built-in adapters registered.
func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[string]Factory),
		probes:   make(map[string]ProbeFactory),
	}

	r.RegisterAdapter("command", func(config map[string]string) (orchestrator.Adapter, error) {
		return NewCommandAdapter(config)
	})
	r.RegisterAdapter("httpcheck", func(config map[string]string) (orchestrator.Adapter, error) {
		return NewHTTPCheckAdapter(config)
	})
	r.RegisterProbe("command", func(config map[string]string) (orchestrator.StabilityProbe, error) {
		return NewCommandProbe(config)
	})
	r.RegisterProbe("httpcheck", func(config map[string]string) (orchestrator.StabilityProbe, error) {
		return NewHTTPProbe(config)
	})

	return r
}

// RegisterAdapter registers an adapter factory under a kind. Registering an
// existing kind replaces it.
func (r *Registry) RegisterAdapter(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = factory
}

// RegisterProbe registers a probe factory under a kind.
func (r *Registry) RegisterProbe(kind string, factory ProbeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[kind] = factory
}

// NewAdapter builds the adapter for a unit.
func (r *Registry) NewAdapter(kind string, config map[string]string) (orchestrator.Adapter, error) {
	r.mu.RLock()
	factory, ok := r.adapters[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter kind %q (known: %v)", kind, r.AdapterKinds())
	}
	return factory(config)
}

// NewProbe builds a stability probe.
func (r *Registry) NewProbe(kind string, config map[string]string) (orchestrator.StabilityProbe, error) {
	r.mu.RLock()
	factory, ok := r.probes[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown probe kind %q (known: %v)", kind, r.ProbeKinds())
	}
	return factory(config)
}

// AdapterKinds returns the registered adapter kinds, sorted.
func (r *Registry) AdapterKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// ProbeKinds returns the registered probe kinds, sorted.
func (r *Registry) ProbeKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.probes))
	for kind := range r.probes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
