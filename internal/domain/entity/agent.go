package entity

import "time"

// Agent is a field agent attached to a unit. Activation is gated by approval.
type Agent struct {
	ID              string     `json:"agentId"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	UnitID          string     `json:"unitId"`
	Status          string     `json:"status"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ActivatedAt     *time.Time `json:"activatedAt,omitempty"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Invitation is issued to an agent once activated, granting portal access
type Invitation struct {
	ID        string    `json:"invitationId"`
	AgentID   string    `json:"agentId"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"-"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}
