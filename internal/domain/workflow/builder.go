package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

type transition struct {
	toState State
	guard   GuardFunc
}

// Builder collects transitions before freezing them into a Definition
type Builder struct {
	name    string
	configs map[State]*StateConfig
}

// StateConfig configures the transitions out of one state
type StateConfig struct {
	from        State
	transitions map[Trigger][]transition
}

// NewBuilder creates a builder for a named lifecycle
func NewBuilder(name string) *Builder {
	return &Builder{name: name, configs: make(map[State]*StateConfig)}
}

// Configure returns the configuration for state, creating it on first use
func (b *Builder) Configure(state State) *StateConfig {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	cfg, ok := b.configs[state]
	if !ok {
		cfg = &StateConfig{from: state, transitions: make(map[Trigger][]transition)}
		b.configs[state] = cfg
	}
	return cfg
}

// Permit allows a trigger to transition to the target state
func (c *StateConfig) Permit(trigger Trigger, toState State) *StateConfig {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *StateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) *StateConfig {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.transitions[trigger] = append(c.transitions[trigger], transition{toState: toState, guard: guard})
	return c
}

// Build freezes the configured transitions. Later changes to the builder do
// not affect the returned definition.
func (b *Builder) Build() *Definition {
	table := make(map[State]map[Trigger][]transition, len(b.configs))
	for state, cfg := range b.configs {
		row := make(map[Trigger][]transition, len(cfg.transitions))
		for trigger, ts := range cfg.transitions {
			row[trigger] = append([]transition(nil), ts...)
		}
		table[state] = row
	}
	return &Definition{name: b.name, table: table}
}

// Definition is an immutable transition table. It is safe for concurrent use.
type Definition struct {
	name  string
	table map[State]map[Trigger][]transition
}

// Name returns the lifecycle name used in error messages
func (d *Definition) Name() string {
	return d.name
}

// Next evaluates trigger against from and returns the resulting state
func (d *Definition) Next(ctx context.Context, from State, trigger Trigger) (State, error) {
	ts := d.table[from][trigger]
	if len(ts) == 0 {
		return from, fmt.Errorf("%w: %s cannot %s from %s", ErrInvalidTransition, d.name, trigger, from)
	}
	for _, t := range ts {
		if t.guard == nil || t.guard(ctx) {
			return t.toState, nil
		}
	}
	return from, fmt.Errorf("%w: %s %s from %s", ErrGuardFailed, d.name, trigger, from)
}

// Can reports whether any transition is configured for trigger out of from.
// Guards are not evaluated.
func (d *Definition) Can(from State, trigger Trigger) bool {
	return len(d.table[from][trigger]) > 0
}

// Permitted lists the triggers configured out of from, sorted for stable output
func (d *Definition) Permitted(from State) []Trigger {
	row := d.table[from]
	triggers := make([]Trigger, 0, len(row))
	for trigger := range row {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// NewMachine starts a machine over this definition at the given state
func (d *Definition) NewMachine(initial State) *Machine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}
	return &Machine{def: d, current: initial}
}
