// Package lifecycle models the invoice and payment state machines as
// explicit transition tables. Repositories persist plain status
// strings; this package is the single place that says which status
// changes are legal and which webhook-driven transitions exist.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
)

// Machine tracks a current state and validates transitions against a
// built configuration. Machines are cheap to build per entity and are
// not safe for concurrent use; callers serialize through the database
// transaction that persists the resulting status.
type Machine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger has at least one configured
	// transition from the current state (guards are not evaluated)
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the first target whose guard
	// passes. Returns ErrInvalidTransition or ErrGuardFailed otherwise.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current
	// state, sorted for stable iteration
	PermittedTriggers() []Trigger
}

type machine struct {
	current State
	configs map[State]*stateConfig
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	config, ok := m.configs[m.current]
	if !ok {
		return false
	}
	return len(config.edges[trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	config, ok := m.configs[m.current]
	if !ok {
		return fmt.Errorf("%w: trigger %s from state %s (state has no transitions)", ErrInvalidTransition, trigger, m.current)
	}

	edges := config.edges[trigger]
	if len(edges) == 0 {
		return fmt.Errorf("%w: trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, e := range edges {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.to
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	config, ok := m.configs[m.current]
	if !ok {
		return nil
	}

	triggers := make([]Trigger, 0, len(config.edges))
	for trigger := range config.edges {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
