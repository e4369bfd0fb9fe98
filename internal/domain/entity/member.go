package entity

import "time"

// Member is a registered member enrolled by an agent
type Member struct {
	ID                   string     `json:"memberId"`
	Name                 string     `json:"name"`
	Email                string     `json:"email,omitempty"`
	AgentID              string     `json:"agentId"`
	UnitID               string     `json:"unitId"`
	Status               string     `json:"status"`
	RegistrationFeeCents int64      `json:"registrationFeeCents"`
	RejectionReason      string     `json:"rejectionReason,omitempty"`
	ActivatedAt          *time.Time `json:"activatedAt,omitempty"`
	CreatedBy            string     `json:"createdBy"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// LedgerEntry is a single posting line in the general ledger
type LedgerEntry struct {
	ID            string    `json:"entryId"`
	TransactionID string    `json:"transactionId"`
	AccountCode   string    `json:"accountCode"`
	Side          string    `json:"side"`
	AmountCents   int64     `json:"amountCents"`
	Reference     string    `json:"reference"`
	Description   string    `json:"description,omitempty"`
	PostedBy      string    `json:"postedBy"`
	PostedAt      time.Time `json:"postedAt"`
}
