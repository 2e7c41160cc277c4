package orchestrator

import (
	"sync"
)

// BindingKey identifies one produced value: a (unit, output name) pair.
type BindingKey struct {
	UnitID string `json:"unit_id"`
	Output string `json:"output"`
}

// Bindings is the write-once map of values produced by ready units. It is
// the only mutable state shared across units: producers append after their
// readiness gate passes, consumers read during input resolution. A recorded
// value is never overwritten within a run.
type Bindings struct {
	mu     sync.RWMutex
	values map[BindingKey]string
}

// NewBindings creates an empty bindings map.
func NewBindings() *Bindings {
	return &Bindings{
		values: make(map[BindingKey]string),
	}
}

// Put records a produced value. Writing twice for the same key fails with
// DuplicateBindingError; the original value is kept.
func (b *Bindings) Put(unitID, output, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := BindingKey{UnitID: unitID, Output: output}
	if _, exists := b.values[key]; exists {
		return &DuplicateBindingError{UnitID: unitID, Output: output}
	}
	b.values[key] = value
	return nil
}

// Get returns the value for (unitID, output) and whether it exists.
func (b *Bindings) Get(unitID, output string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, ok := b.values[BindingKey{UnitID: unitID, Output: output}]
	return value, ok
}

// ResolveInputs builds the input map for a unit from its declared input
// references. It fails with MissingBindingError on the first reference that
// has no recorded value.
func (b *Bindings) ResolveInputs(unit *UnitDescriptor) (map[string]string, error) {
	inputs := make(map[string]string, len(unit.Inputs))
	for _, ref := range unit.Inputs {
		value, ok := b.Get(ref.FromUnit, ref.Output)
		if !ok {
			return nil, &MissingBindingError{UnitID: unit.ID, Ref: ref}
		}
		inputs[ref.Name] = value
	}
	return inputs, nil
}

// Len returns the number of recorded bindings.
func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

// Snapshot returns a copy of all recorded bindings.
func (b *Bindings) Snapshot() map[BindingKey]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[BindingKey]string, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}
