package workflow

// State is a lifecycle state shared by approval requests and stage executions.
// The values match the persisted status strings.
type State string

const (
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
	StateCancelled State = "CANCELLED"
	StateSkipped   State = "SKIPPED"
)

var validStates = map[State]bool{
	StatePending:   true,
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
	StateSkipped:   true,
}

// IsTerminal returns true once no further transitions are allowed
func (s State) IsTerminal() bool {
	return validStates[s] && s != StatePending
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is known
func (s State) IsValid() bool {
	return validStates[s]
}
