package lifecycle

import "context"

// GuardFunc decides at fire time whether a candidate transition applies
type GuardFunc func(ctx context.Context) bool

// Builder assembles a transition table and stamps out independent
// Machine instances from it
type Builder interface {
	// Configure returns the configuration for the given state, creating
	// it on first use. Panics on a state outside the lifecycle vocabulary.
	Configure(state State) StateConfiguration

	// Build creates a machine starting at initial. The machine owns a
	// copy of the table, so later Configure calls do not leak into it.
	Build(initial State) Machine
}

// StateConfiguration declares the outgoing transitions of one state
type StateConfiguration interface {
	// Permit allows trigger to move to the target state unconditionally
	Permit(trigger Trigger, to State) StateConfiguration

	// PermitIf allows the move only when guard passes at fire time.
	// Multiple PermitIf entries for one trigger are tried in order.
	PermitIf(trigger Trigger, to State, guard GuardFunc) StateConfiguration
}

// edge is one (trigger -> target) arc, optionally guarded
type edge struct {
	to    State
	guard GuardFunc
}

type stateConfig struct {
	from  State
	edges map[Trigger][]edge
}

type builder struct {
	configs map[State]*stateConfig
}

// NewBuilder creates an empty transition-table builder
func NewBuilder() Builder {
	return &builder{
		configs: make(map[State]*stateConfig),
	}
}

func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic("lifecycle: invalid state " + state.String())
	}

	config, ok := b.configs[state]
	if !ok {
		config = &stateConfig{
			from:  state,
			edges: make(map[Trigger][]edge),
		}
		b.configs[state] = config
	}
	return config
}

func (b *builder) Build(initial State) Machine {
	if !initial.IsValid() {
		panic("lifecycle: invalid initial state " + initial.String())
	}

	// Copy the table so machines stay independent of the builder and
	// of each other
	configs := make(map[State]*stateConfig, len(b.configs))
	for state, config := range b.configs {
		edges := make(map[Trigger][]edge, len(config.edges))
		for trigger, list := range config.edges {
			edges[trigger] = append([]edge(nil), list...)
		}
		configs[state] = &stateConfig{from: state, edges: edges}
	}

	return &machine{
		current: initial,
		configs: configs,
	}
}

func (c *stateConfig) Permit(trigger Trigger, to State) StateConfiguration {
	return c.PermitIf(trigger, to, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, to State, guard GuardFunc) StateConfiguration {
	if !to.IsValid() {
		panic("lifecycle: invalid target state " + to.String())
	}

	c.edges[trigger] = append(c.edges[trigger], edge{to: to, guard: guard})
	return c
}
