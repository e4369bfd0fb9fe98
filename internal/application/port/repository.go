package port

import (
	"context"

	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

// Lookups return (nil, nil) when the row does not exist; callers decide
// whether absence is an error.

// WorkflowRepository defines persistence operations for ApprovalWorkflow
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.ApprovalWorkflow) error
	Update(ctx context.Context, wf *entity.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalWorkflow, error)
	GetByCode(ctx context.Context, code string) (*entity.ApprovalWorkflow, error)

	// ListActive returns active workflows; an empty module matches all modules
	ListActive(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error)
	ListAll(ctx context.Context) ([]*entity.ApprovalWorkflow, error)
}

// StageRepository defines persistence operations for ApprovalStage
type StageRepository interface {
	CreateMany(ctx context.Context, stages []*entity.ApprovalStage) error

	// ListByWorkflow returns stages ordered by StageOrder
	ListByWorkflow(ctx context.Context, workflowID string) ([]*entity.ApprovalStage, error)
}

// RequestFilter narrows ListRequests; zero values match everything
type RequestFilter struct {
	WorkflowCode string
	EntityType   string
	Status       entity.RequestStatus
	RequestedBy  string
	Limit        int
	Offset       int
}

// RequestRepository defines persistence operations for ApprovalRequest
type RequestRepository interface {
	Create(ctx context.Context, req *entity.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error)

	// GetLatestByEntity returns the most recently requested row for the entity
	GetLatestByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalRequest, error)
	HasPending(ctx context.Context, entityType, entityID string) (bool, error)
	List(ctx context.Context, filter RequestFilter) ([]*entity.ApprovalRequest, error)

	// UpdateIfAt writes status, current stage and completion time only while the
	// stored row is still PENDING at expectedStage. It reports whether a row changed.
	UpdateIfAt(ctx context.Context, req *entity.ApprovalRequest, expectedStage int) (bool, error)
}

// ExecutionRepository defines persistence operations for ApprovalStageExecution
type ExecutionRepository interface {
	Create(ctx context.Context, exec *entity.ApprovalStageExecution) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalStageExecution, error)

	// ListByRequest returns executions ordered by StageOrder
	ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalStageExecution, error)

	// ListPending returns PENDING executions assigned to approverID or to any of roles
	ListPending(ctx context.Context, approverID string, roles []string) ([]*entity.ApprovalStageExecution, error)

	// CompleteIfPending records the outcome only while the stored row is PENDING
	CompleteIfPending(ctx context.Context, exec *entity.ApprovalStageExecution) (bool, error)
}

// ForumRepository defines persistence operations for Forum
type ForumRepository interface {
	Create(ctx context.Context, forum *entity.Forum) error
	GetByID(ctx context.Context, id string) (*entity.Forum, error)
}

// AreaRepository defines persistence operations for Area
type AreaRepository interface {
	Create(ctx context.Context, area *entity.Area) error
	GetByID(ctx context.Context, id string) (*entity.Area, error)
}

// UnitRepository defines persistence operations for Unit
type UnitRepository interface {
	Create(ctx context.Context, unit *entity.Unit) error
	GetByID(ctx context.Context, id string) (*entity.Unit, error)
}

// AgentRepository defines persistence operations for Agent
type AgentRepository interface {
	Create(ctx context.Context, agent *entity.Agent) error
	GetByID(ctx context.Context, id string) (*entity.Agent, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Agent, error)

	// UpdateStatusFrom moves the agent only while its stored status equals from
	UpdateStatusFrom(ctx context.Context, agent *entity.Agent, from string) (bool, error)
}

// MemberRepository defines persistence operations for Member
type MemberRepository interface {
	Create(ctx context.Context, member *entity.Member) error
	GetByID(ctx context.Context, id string) (*entity.Member, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Member, error)
	UpdateStatusFrom(ctx context.Context, member *entity.Member, from string) (bool, error)
}

// InvitationRepository defines persistence operations for Invitation
type InvitationRepository interface {
	Create(ctx context.Context, inv *entity.Invitation) error
	GetByAgentID(ctx context.Context, agentID string) (*entity.Invitation, error)
}

// LedgerRepository defines persistence operations for LedgerEntry
type LedgerRepository interface {
	// Post writes all lines of one balanced transaction
	Post(ctx context.Context, entries []*entity.LedgerEntry) error
	ListByReference(ctx context.Context, reference string) ([]*entity.LedgerEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction runs fn in a transaction, joining one already carried by ctx
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit defers fn until the outermost transaction in ctx commits.
	// Hooks are dropped on rollback. Outside a transaction fn runs immediately.
	AfterCommit(ctx context.Context, fn func())
}
