package orchestrator

import (
	"time"
)

// InputRef declares that a unit consumes a value produced by one of its
// dependencies. The value is looked up in the bindings map under
// (FromUnit, Output) and passed to the unit's adapter under Name.
type InputRef struct {
	// Name is the key the consuming adapter receives the value under.
	Name string `json:"name"`

	// FromUnit is the ID of the producing unit.
	FromUnit string `json:"from_unit"`

	// Output is the output name declared by the producing unit.
	Output string `json:"output"`
}

// GatePolicy bounds the readiness gate for one unit. Zero values fall back
// to the defaults in DefaultGatePolicy.
type GatePolicy struct {
	// Timeout is the maximum total time the gate waits for readiness.
	Timeout time.Duration `json:"timeout"`

	// Interval is the initial delay between verification polls.
	Interval time.Duration `json:"interval"`

	// MaxInterval caps the exponential backoff between polls.
	MaxInterval time.Duration `json:"max_interval"`
}

// DefaultGatePolicy returns the gate bounds used when a unit declares none.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		Timeout:     5 * time.Minute,
		Interval:    2 * time.Second,
		MaxInterval: 30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultGatePolicy.
func (p GatePolicy) withDefaults() GatePolicy {
	def := DefaultGatePolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	return p
}

// StabilityPolicy configures the post-deployment stability monitor.
type StabilityPolicy struct {
	// UnitID is the unit whose steady state is monitored. Empty selects
	// the last unit of the execution plan.
	UnitID string `json:"unit_id"`

	// Probe reads the workload's steady state.
	Probe StabilityProbe `json:"-"`

	// Timeout is the maximum time to wait for a stable observation.
	Timeout time.Duration `json:"timeout"`

	// Interval is the delay between observations.
	Interval time.Duration `json:"interval"`
}

// UnitDescriptor declares one deployable unit of an orchestration run.
// Descriptors are data; all side effects live behind the bound Adapter.
type UnitDescriptor struct {
	// ID is the unique identifier for this unit.
	ID string `json:"id"`

	// DependsOn lists unit IDs that must be Ready before this unit starts.
	DependsOn []string `json:"depends_on,omitempty"`

	// Inputs declares the bindings this unit consumes.
	Inputs []InputRef `json:"inputs,omitempty"`

	// Outputs names the values this unit produces. The adapter's Apply
	// must return a value for every declared output.
	Outputs []string `json:"outputs,omitempty"`

	// Adapter performs the unit's apply and verify operations.
	Adapter Adapter `json:"-"`

	// Gate bounds the unit's readiness gate.
	Gate GatePolicy `json:"gate"`
}

// PlanNode is one unit's position in the resolved execution graph.
type PlanNode struct {
	// ID is the unit ID.
	ID string `json:"id"`

	// Level is the topological level; units at the same level share no
	// ordering constraint and may be applied concurrently.
	Level int `json:"level"`

	// Dependencies are the unit IDs this node depends on.
	Dependencies []string `json:"dependencies"`

	// Dependents are the unit IDs that depend on this node.
	Dependents []string `json:"dependents"`
}

// PlanEdge is a dependency edge: From must be Ready before To starts.
type PlanEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ExecutionPlan is a topologically ordered view of the declared unit graph.
type ExecutionPlan struct {
	// Units holds the descriptors in declaration order.
	Units []UnitDescriptor `json:"units"`

	// Order is the flattened execution order; within a level, ties are
	// broken by declaration order for determinism.
	Order []string `json:"order"`

	// Levels groups unit IDs by topological level.
	Levels [][]string `json:"levels"`

	// Nodes maps unit IDs to their graph nodes.
	Nodes map[string]*PlanNode `json:"nodes"`

	// Edges lists all dependency edges.
	Edges []PlanEdge `json:"edges"`

	// Roots are the unit IDs with no dependencies.
	Roots []string `json:"roots"`

	// Depth is the number of levels.
	Depth int `json:"depth"`
}

// Unit returns the descriptor for the given ID, or nil if not in the plan.
func (p *ExecutionPlan) Unit(id string) *UnitDescriptor {
	for i := range p.Units {
		if p.Units[i].ID == id {
			return &p.Units[i]
		}
	}
	return nil
}

// FinalUnit returns the last unit in execution order. The stability monitor
// watches this unit unless the policy names another.
func (p *ExecutionPlan) FinalUnit() *UnitDescriptor {
	if len(p.Order) == 0 {
		return nil
	}
	return p.Unit(p.Order[len(p.Order)-1])
}

// Transition is one append-only entry in the run record.
type Transition struct {
	// UnitID is the unit that changed state.
	UnitID string `json:"unit_id"`

	// From is the state before the transition.
	From UnitState `json:"from"`

	// To is the state after the transition.
	To UnitState `json:"to"`

	// At is when the transition was recorded.
	At time.Time `json:"at"`

	// Note carries failure or cancellation context, if any.
	Note string `json:"note,omitempty"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the total number of units in the plan.
	Total int `json:"total"`

	// Ready is the number of units that reached Ready.
	Ready int `json:"ready"`

	// Failed is the number of units that failed.
	Failed int `json:"failed"`

	// Cancelled is the number of units cancelled in flight.
	Cancelled int `json:"cancelled"`

	// Pending is the number of units that never started.
	Pending int `json:"pending"`
}
