package entity

import "time"

// RequestStatus is the lifecycle status of an ApprovalRequest
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// IsTerminal reports whether no further mutation is permitted
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// ExecutionStatus is the lifecycle status of an ApprovalStageExecution
type ExecutionStatus string

const (
	ExecutionStatusPending  ExecutionStatus = "PENDING"
	ExecutionStatusApproved ExecutionStatus = "APPROVED"
	ExecutionStatusRejected ExecutionStatus = "REJECTED"
	ExecutionStatusSkipped  ExecutionStatus = "SKIPPED"
)

// Decision is a reviewer's verdict on a stage
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IsValid reports whether the decision is known
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ApprovalRequest is one run of a workflow against one target aggregate
type ApprovalRequest struct {
	ID           string `json:"requestId"`
	WorkflowID   string `json:"workflowId"`
	WorkflowCode string `json:"workflowCode"`
	EntityType   string `json:"entityType"`
	EntityID     string `json:"entityId"`

	// Hierarchy context used to resolve HIERARCHY approvers
	ForumID string `json:"forumId,omitempty"`
	AreaID  string `json:"areaId,omitempty"`
	UnitID  string `json:"unitId,omitempty"`

	RequestedBy string        `json:"requestedBy"`
	RequestedAt time.Time     `json:"requestedAt"`
	Status      RequestStatus `json:"status"`

	// CurrentStageOrder is nil once the request is terminal
	CurrentStageOrder *int `json:"currentStageOrder"`

	Attributes  map[string]any `json:"attributes,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// IsAt reports whether the request is pending and awaiting the given stage
func (r *ApprovalRequest) IsAt(stageOrder int) bool {
	return r.Status == RequestStatusPending && r.CurrentStageOrder != nil && *r.CurrentStageOrder == stageOrder
}

// ApprovalStageExecution records a single stage's outcome within one request
type ApprovalStageExecution struct {
	ID         string `json:"executionId"`
	RequestID  string `json:"requestId"`
	StageID    string `json:"stageId"`
	StageOrder int    `json:"stageOrder"`

	// AssignedApproverID is empty for ROLE stages; AssignedRoleID names the role instead
	AssignedApproverID string `json:"assignedApproverId,omitempty"`
	AssignedRoleID     string `json:"assignedRoleId,omitempty"`

	Status     ExecutionStatus `json:"status"`
	Decision   Decision        `json:"decision,omitempty"`
	ReviewedBy string          `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time      `json:"reviewedAt,omitempty"`
	Comments   string          `json:"comments,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
