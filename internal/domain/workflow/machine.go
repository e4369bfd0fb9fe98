package workflow

import "context"

// Transition records one successful Fire
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// Machine tracks the current state of one aggregate. Not safe for concurrent use.
type Machine struct {
	def     *Definition
	current State
}

// State returns the current state
func (m *Machine) State() State {
	return m.current
}

// CanFire returns true if the trigger is configured in the current state
func (m *Machine) CanFire(trigger Trigger) bool {
	return m.def.Can(m.current, trigger)
}

// Fire moves the machine if the trigger is allowed. On error the state is unchanged.
func (m *Machine) Fire(ctx context.Context, trigger Trigger) (Transition, error) {
	next, err := m.def.Next(ctx, m.current, trigger)
	if err != nil {
		return Transition{}, err
	}
	t := Transition{From: m.current, To: next, Trigger: trigger}
	m.current = next
	return t, nil
}

// PermittedTriggers returns the triggers configured in the current state
func (m *Machine) PermittedTriggers() []Trigger {
	return m.def.Permitted(m.current)
}
