package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestSubmitted Type = "approval.request.submitted"
	TypeStageAssigned    Type = "approval.stage.assigned"
	TypeRequestApproved  Type = "approval.request.approved"
	TypeRequestRejected  Type = "approval.request.rejected"
	TypeRequestCancelled Type = "approval.request.cancelled"
	TypeAgentActivated   Type = "agent.activated"
	TypeAgentRejected    Type = "agent.rejected"
	TypeMemberActivated  Type = "member.activated"
	TypeMemberRejected   Type = "member.rejected"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeStageAssigned,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestCancelled,
		TypeAgentActivated,
		TypeAgentRejected,
		TypeMemberActivated,
		TypeMemberRejected:
		return true
	default:
		return false
	}
}

// IsApprovalOutcome reports whether the type announces a terminal request outcome
func (t Type) IsApprovalOutcome() bool {
	return t == TypeRequestApproved || t == TypeRequestRejected || t == TypeRequestCancelled
}

// AllTypes lists every defined event type in publication order of a typical request
func AllTypes() []Type {
	return []Type{
		TypeRequestSubmitted,
		TypeStageAssigned,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestCancelled,
		TypeAgentActivated,
		TypeAgentRejected,
		TypeMemberActivated,
		TypeMemberRejected,
	}
}
