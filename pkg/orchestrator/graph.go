package orchestrator

import (
	"sort"
)

// PlanBuilder resolves declared unit dependencies into an ExecutionPlan.
// It validates references, detects cycles, and assigns topological levels so
// independent units can be applied concurrently.
type PlanBuilder struct {
	// units maps unit IDs to their descriptors
	units map[string]*UnitDescriptor

	// declOrder maps unit IDs to their declaration index, used to break
	// ties among independent units deterministically
	declOrder map[string]int

	// dependents maps unit IDs to the IDs that depend on them
	dependents map[string][]string

	// inDegree tracks the number of unresolved dependencies per unit
	inDegree map[string]int
}

// NewPlanBuilder creates a new plan builder.
func NewPlanBuilder() *PlanBuilder {
	return &PlanBuilder{
		units:      make(map[string]*UnitDescriptor),
		declOrder:  make(map[string]int),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}
}

// Build constructs an execution plan from the declared units. It fails with
// UnknownDependencyError if a reference is dangling and with
// CyclicDependencyError if the graph is not acyclic; in both cases no unit
// has run.
func (b *PlanBuilder) Build(units []UnitDescriptor) (*ExecutionPlan, error) {
	if err := b.initialize(units); err != nil {
		return nil, err
	}

	if err := b.detectCycles(units); err != nil {
		return nil, err
	}

	levels := b.computeLevels(units)

	return b.assemble(units, levels), nil
}

// initialize indexes the units and validates dependency references.
func (b *PlanBuilder) initialize(units []UnitDescriptor) error {
	for i := range units {
		unit := &units[i]
		if unit.ID == "" {
			return &EmptyUnitIDError{Index: i}
		}
		if _, exists := b.units[unit.ID]; exists {
			return &DuplicateUnitError{UnitID: unit.ID}
		}
		b.units[unit.ID] = unit
		b.declOrder[unit.ID] = i
		b.inDegree[unit.ID] = 0
	}

	for i := range units {
		unit := &units[i]
		for _, dep := range unit.DependsOn {
			if _, exists := b.units[dep]; !exists {
				return &UnknownDependencyError{UnitID: unit.ID, MissingID: dep}
			}
			b.dependents[dep] = append(b.dependents[dep], unit.ID)
			b.inDegree[unit.ID]++
		}
	}

	return nil
}

// detectCycles uses depth-first search over the declared units, visiting in
// declaration order so the reported cycle is stable across runs.
func (b *PlanBuilder) detectCycles(units []UnitDescriptor) error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string, path []string) []string
	visit = func(id string, path []string) []string {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range b.dependents[id] {
			if onStack[next] {
				// Close the cycle at the first occurrence of next.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				return append(append([]string{}, path[start:]...), next)
			}
			if !visited[next] {
				if cycle := visit(next, path); cycle != nil {
					return cycle
				}
			}
		}

		onStack[id] = false
		return nil
	}

	for i := range units {
		id := units[i].ID
		if !visited[id] {
			if cycle := visit(id, nil); cycle != nil {
				return &CyclicDependencyError{Cycle: cycle}
			}
		}
	}

	return nil
}

// computeLevels assigns execution levels using Kahn's algorithm. Each level
// is sorted by declaration order so plans are deterministic for identical
// input.
func (b *PlanBuilder) computeLevels(units []UnitDescriptor) [][]string {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	current := make([]string, 0)
	for i := range units {
		if inDegree[units[i].ID] == 0 {
			current = append(current, units[i].ID)
		}
	}

	levels := make([][]string, 0)
	for len(current) > 0 {
		b.sortByDeclaration(current)
		levels = append(levels, current)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range b.dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	return levels
}

// sortByDeclaration orders unit IDs by their declaration index.
func (b *PlanBuilder) sortByDeclaration(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return b.declOrder[ids[i]] < b.declOrder[ids[j]]
	})
}

// assemble builds the final ExecutionPlan structure.
func (b *PlanBuilder) assemble(units []UnitDescriptor, levels [][]string) *ExecutionPlan {
	plan := &ExecutionPlan{
		Units:  units,
		Order:  make([]string, 0, len(units)),
		Levels: levels,
		Nodes:  make(map[string]*PlanNode, len(units)),
		Edges:  make([]PlanEdge, 0),
		Roots:  make([]string, 0),
		Depth:  len(levels),
	}

	for level, ids := range levels {
		for _, id := range ids {
			unit := b.units[id]
			deps := append([]string{}, unit.DependsOn...)
			dependents := append([]string{}, b.dependents[id]...)
			b.sortByDeclaration(dependents)

			plan.Nodes[id] = &PlanNode{
				ID:           id,
				Level:        level,
				Dependencies: deps,
				Dependents:   dependents,
			}
			plan.Order = append(plan.Order, id)
			if level == 0 {
				plan.Roots = append(plan.Roots, id)
			}
		}
	}

	for i := range units {
		for _, dep := range units[i].DependsOn {
			plan.Edges = append(plan.Edges, PlanEdge{From: dep, To: units[i].ID})
		}
	}

	return plan
}
