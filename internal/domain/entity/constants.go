package entity

// Entity types gated by approval workflows
const (
	EntityTypeAgent  = "Agent"
	EntityTypeMember = "Member"
)

// Modules owning workflows
const (
	ModuleAgents  = "agents"
	ModuleMembers = "members"
)

// SystemActorID is recorded as reviewer for stages resolved without a human decision
const SystemActorID = "system"

// Lifecycle status constants shared by Agent and Member
const (
	LifecycleStatusPendingApproval = "PENDING_APPROVAL"
	LifecycleStatusActive          = "ACTIVE"
	LifecycleStatusRejected        = "REJECTED"
	LifecycleStatusSuspended       = "SUSPENDED"
)

// Invitation status constants
const (
	InvitationStatusPending  = "PENDING"
	InvitationStatusAccepted = "ACCEPTED"
	InvitationStatusExpired  = "EXPIRED"
)

// Ledger entry sides
const (
	LedgerSideDebit  = "DEBIT"
	LedgerSideCredit = "CREDIT"
)
