package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerApprove records an approval decision, human or automatic
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerCancel  Trigger = "CANCEL"
	TriggerSkip    Trigger = "SKIP"
	// TriggerAdvance moves a pending request to its next stage
	TriggerAdvance Trigger = "ADVANCE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
