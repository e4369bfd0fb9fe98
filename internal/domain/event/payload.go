package event

import "time"

// RequestSubmitted is published once a request has been persisted
type RequestSubmitted struct {
	RequestID    string `json:"requestId"`
	WorkflowCode string `json:"workflowCode"`
	EntityType   string `json:"entityType"`
	EntityID     string `json:"entityId"`
	RequestedBy  string `json:"requestedBy"`
}

func (RequestSubmitted) EventType() Type { return TypeRequestSubmitted }

// StageAssigned is published when a stage execution starts waiting for a decision
type StageAssigned struct {
	RequestID          string `json:"requestId"`
	ExecutionID        string `json:"executionId"`
	WorkflowCode       string `json:"workflowCode"`
	EntityType         string `json:"entityType"`
	EntityID           string `json:"entityId"`
	StageOrder         int    `json:"stageOrder"`
	AssignedApproverID string `json:"assignedApproverId,omitempty"`
	AssignedRoleID     string `json:"assignedRoleId,omitempty"`
}

func (StageAssigned) EventType() Type { return TypeStageAssigned }

// RequestApproved is the wire-stable payload of approval.request.approved
type RequestApproved struct {
	RequestID    string    `json:"requestId"`
	WorkflowCode string    `json:"workflowCode"`
	EntityType   string    `json:"entityType"`
	EntityID     string    `json:"entityId"`
	ApprovedBy   string    `json:"approvedBy"`
	ApprovedAt   time.Time `json:"approvedAt"`
}

func (RequestApproved) EventType() Type { return TypeRequestApproved }

// RequestRejected is the wire-stable payload of approval.request.rejected
type RequestRejected struct {
	RequestID       string    `json:"requestId"`
	WorkflowCode    string    `json:"workflowCode"`
	EntityType      string    `json:"entityType"`
	EntityID        string    `json:"entityId"`
	RejectedBy      string    `json:"rejectedBy"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	RejectedAt      time.Time `json:"rejectedAt"`
}

func (RequestRejected) EventType() Type { return TypeRequestRejected }

// RequestCancelled is published after an administrative cancellation
type RequestCancelled struct {
	RequestID    string    `json:"requestId"`
	WorkflowCode string    `json:"workflowCode"`
	EntityType   string    `json:"entityType"`
	EntityID     string    `json:"entityId"`
	CancelledBy  string    `json:"cancelledBy"`
	Reason       string    `json:"reason,omitempty"`
	CancelledAt  time.Time `json:"cancelledAt"`
}

func (RequestCancelled) EventType() Type { return TypeRequestCancelled }

// AgentActivated follows a successful agent activation
type AgentActivated struct {
	AgentID      string    `json:"agentId"`
	UnitID       string    `json:"unitId"`
	InvitationID string    `json:"invitationId"`
	ActivatedAt  time.Time `json:"activatedAt"`
}

func (AgentActivated) EventType() Type { return TypeAgentActivated }

// AgentRejected follows a rejected agent registration
type AgentRejected struct {
	AgentID string `json:"agentId"`
	Reason  string `json:"reason,omitempty"`
}

func (AgentRejected) EventType() Type { return TypeAgentRejected }

// MemberActivated follows a member activation and its fee posting
type MemberActivated struct {
	MemberID      string    `json:"memberId"`
	AgentID       string    `json:"agentId"`
	TransactionID string    `json:"transactionId,omitempty"`
	AmountCents   int64     `json:"amountCents"`
	ActivatedAt   time.Time `json:"activatedAt"`
}

func (MemberActivated) EventType() Type { return TypeMemberActivated }

// MemberRejected follows a rejected member registration
type MemberRejected struct {
	MemberID string `json:"memberId"`
	Reason   string `json:"reason,omitempty"`
}

func (MemberRejected) EventType() Type { return TypeMemberRejected }
