package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestBindingsWriteOnce(t *testing.T) {
	b := NewBindings()

	if err := b.Put("registry", "repository_url", "example.com/app"); err != nil {
		t.Fatalf("first put failed: %v", err)
	}

	err := b.Put("registry", "repository_url", "evil.com/app")
	var dupErr *DuplicateBindingError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateBindingError, got %v", err)
	}

	// The original value survives the rejected overwrite.
	value, ok := b.Get("registry", "repository_url")
	if !ok || value != "example.com/app" {
		t.Errorf("expected original value, got %q (ok=%v)", value, ok)
	}
}

func TestBindingsGetMissing(t *testing.T) {
	b := NewBindings()
	if _, ok := b.Get("ghost", "out"); ok {
		t.Error("expected no value for unrecorded binding")
	}
}

func TestResolveInputs(t *testing.T) {
	b := NewBindings()
	if err := b.Put("registry", "repository_url", "example.com/app"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := b.Put("build", "digest", "sha256:abc"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	unit := &UnitDescriptor{
		ID: "service",
		Inputs: []InputRef{
			{Name: "image", FromUnit: "registry", Output: "repository_url"},
			{Name: "digest", FromUnit: "build", Output: "digest"},
		},
	}

	inputs, err := b.ResolveInputs(unit)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if inputs["image"] != "example.com/app" || inputs["digest"] != "sha256:abc" {
		t.Errorf("unexpected inputs %v", inputs)
	}
}

func TestResolveInputsMissing(t *testing.T) {
	b := NewBindings()
	unit := &UnitDescriptor{
		ID:     "service",
		Inputs: []InputRef{{Name: "image", FromUnit: "registry", Output: "repository_url"}},
	}

	_, err := b.ResolveInputs(unit)
	var missingErr *MissingBindingError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected MissingBindingError, got %v", err)
	}
	if missingErr.UnitID != "service" || missingErr.Ref.FromUnit != "registry" {
		t.Errorf("unexpected error fields %+v", missingErr)
	}
}

func TestBindingsSnapshot(t *testing.T) {
	b := NewBindings()
	_ = b.Put("a", "x", "1")
	_ = b.Put("b", "y", "2")

	snapshot := b.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snapshot))
	}
	if snapshot[BindingKey{UnitID: "a", Output: "x"}] != "1" {
		t.Errorf("unexpected snapshot %v", snapshot)
	}

	// Mutating the snapshot must not affect the bindings.
	snapshot[BindingKey{UnitID: "c", Output: "z"}] = "3"
	if b.Len() != 2 {
		t.Errorf("expected 2 bindings after snapshot mutation, got %d", b.Len())
	}
}

func TestBindingsConcurrentProducers(t *testing.T) {
	b := NewBindings()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unitID := fmt.Sprintf("unit-%d", i)
			if err := b.Put(unitID, "out", "v"); err != nil {
				t.Errorf("put %s failed: %v", unitID, err)
			}
		}(i)
	}
	wg.Wait()

	if b.Len() != 50 {
		t.Errorf("expected 50 bindings, got %d", b.Len())
	}
}
