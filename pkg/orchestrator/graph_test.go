package orchestrator

import (
	"errors"
	"reflect"
	"testing"
)

func unitIDs(ids ...string) []UnitDescriptor {
	units := make([]UnitDescriptor, 0, len(ids))
	for _, id := range ids {
		units = append(units, UnitDescriptor{ID: id})
	}
	return units
}

func TestBuildLinearChain(t *testing.T) {
	units := []UnitDescriptor{
		{ID: "registry"},
		{ID: "image", DependsOn: []string{"registry"}},
		{ID: "service", DependsOn: []string{"image"}},
	}

	plan, err := NewPlanBuilder().Build(units)
	if err != nil {
		t.Fatalf("failed to build plan: %v", err)
	}

	wantOrder := []string{"registry", "image", "service"}
	if !reflect.DeepEqual(plan.Order, wantOrder) {
		t.Errorf("expected order %v, got %v", wantOrder, plan.Order)
	}
	if plan.Depth != 3 {
		t.Errorf("expected depth 3, got %d", plan.Depth)
	}
	if !reflect.DeepEqual(plan.Roots, []string{"registry"}) {
		t.Errorf("expected roots [registry], got %v", plan.Roots)
	}
}

func TestBuildDiamond(t *testing.T) {
	units := []UnitDescriptor{
		{ID: "network"},
		{ID: "database", DependsOn: []string{"network"}},
		{ID: "cache", DependsOn: []string{"network"}},
		{ID: "api", DependsOn: []string{"database", "cache"}},
	}

	plan, err := NewPlanBuilder().Build(units)
	if err != nil {
		t.Fatalf("failed to build plan: %v", err)
	}

	wantLevels := [][]string{{"network"}, {"database", "cache"}, {"api"}}
	if !reflect.DeepEqual(plan.Levels, wantLevels) {
		t.Errorf("expected levels %v, got %v", wantLevels, plan.Levels)
	}

	node := plan.Nodes["api"]
	if node.Level != 2 {
		t.Errorf("expected api at level 2, got %d", node.Level)
	}
	if !reflect.DeepEqual(node.Dependencies, []string{"database", "cache"}) {
		t.Errorf("unexpected api dependencies %v", node.Dependencies)
	}
	if !reflect.DeepEqual(plan.Nodes["network"].Dependents, []string{"database", "cache"}) {
		t.Errorf("unexpected network dependents %v", plan.Nodes["network"].Dependents)
	}

	if len(plan.Edges) != 4 {
		t.Errorf("expected 4 edges, got %d", len(plan.Edges))
	}
}

// Independent units must execute in declaration order, so identical input
// always yields an identical plan.
func TestBuildDeclarationOrderTieBreak(t *testing.T) {
	units := unitIDs("zeta", "alpha", "mike")

	for i := 0; i < 20; i++ {
		plan, err := NewPlanBuilder().Build(units)
		if err != nil {
			t.Fatalf("failed to build plan: %v", err)
		}
		want := []string{"zeta", "alpha", "mike"}
		if !reflect.DeepEqual(plan.Order, want) {
			t.Fatalf("iteration %d: expected order %v, got %v", i, want, plan.Order)
		}
	}
}

func TestBuildCycleDetected(t *testing.T) {
	units := []UnitDescriptor{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	}

	_, err := NewPlanBuilder().Build(units)
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}

	var cycleErr *CyclicDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CyclicDependencyError, got %T", err)
	}
	if len(cycleErr.Cycle) != 4 {
		t.Errorf("expected closed cycle of 4 nodes, got %v", cycleErr.Cycle)
	}
	if cycleErr.Cycle[0] != cycleErr.Cycle[len(cycleErr.Cycle)-1] {
		t.Errorf("expected cycle path to close on itself, got %v", cycleErr.Cycle)
	}
}

func TestBuildSelfDependency(t *testing.T) {
	units := []UnitDescriptor{{ID: "a", DependsOn: []string{"a"}}}

	_, err := NewPlanBuilder().Build(units)
	var cycleErr *CyclicDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	want := []string{"a", "a"}
	if !reflect.DeepEqual(cycleErr.Cycle, want) {
		t.Errorf("expected cycle %v, got %v", want, cycleErr.Cycle)
	}
}

func TestBuildDanglingDependency(t *testing.T) {
	units := []UnitDescriptor{{ID: "service", DependsOn: []string{"ghost"}}}

	_, err := NewPlanBuilder().Build(units)
	var depErr *UnknownDependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected UnknownDependencyError, got %v", err)
	}
	if depErr.UnitID != "service" || depErr.MissingID != "ghost" {
		t.Errorf("unexpected error fields %+v", depErr)
	}
}

func TestBuildDuplicateID(t *testing.T) {
	_, err := NewPlanBuilder().Build(unitIDs("a", "a"))
	var dupErr *DuplicateUnitError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateUnitError, got %v", err)
	}
}

func TestBuildEmptyID(t *testing.T) {
	_, err := NewPlanBuilder().Build([]UnitDescriptor{{ID: "a"}, {ID: ""}})
	var emptyErr *EmptyUnitIDError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyUnitIDError, got %v", err)
	}
	if emptyErr.Index != 1 {
		t.Errorf("expected index 1, got %d", emptyErr.Index)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	plan, err := NewPlanBuilder().Build(nil)
	if err != nil {
		t.Fatalf("unexpected error for empty input: %v", err)
	}
	if len(plan.Order) != 0 || plan.Depth != 0 {
		t.Errorf("expected empty plan, got %+v", plan)
	}
	if plan.FinalUnit() != nil {
		t.Error("expected no final unit in empty plan")
	}
}

func TestPlanUnitLookup(t *testing.T) {
	plan, err := NewPlanBuilder().Build(unitIDs("a", "b"))
	if err != nil {
		t.Fatalf("failed to build plan: %v", err)
	}

	if unit := plan.Unit("b"); unit == nil || unit.ID != "b" {
		t.Errorf("expected unit b, got %v", unit)
	}
	if unit := plan.Unit("ghost"); unit != nil {
		t.Errorf("expected nil for unknown unit, got %v", unit)
	}
	if final := plan.FinalUnit(); final == nil || final.ID != "b" {
		t.Errorf("expected final unit b, got %v", final)
	}
}
