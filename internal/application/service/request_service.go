package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/domain/event"
	"github.com/garyjia/membership-approvals/internal/domain/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SubmitRequestInput starts an approval for one entity
type SubmitRequestInput struct {
	WorkflowCode string                 `json:"workflowCode"`
	EntityType   string                 `json:"entityType"`
	EntityID     string                 `json:"entityId"`
	ForumID      string                 `json:"forumId"`
	AreaID       string                 `json:"areaId"`
	UnitID       string                 `json:"unitId"`
	Attributes   map[string]interface{} `json:"attributes"`
}

// ProcessApprovalInput is a reviewer's decision on one stage execution
type ProcessApprovalInput struct {
	ExecutionID string          `json:"executionId"`
	Decision    entity.Decision `json:"decision"`
	Comments    string          `json:"comments"`
}

// RequestDetail is a request with its executions ordered by stage
type RequestDetail struct {
	Request    *entity.ApprovalRequest          `json:"request"`
	Executions []*entity.ApprovalStageExecution `json:"executions"`
}

// PendingApproval is one execution awaiting a decision, with its request
type PendingApproval struct {
	Execution *entity.ApprovalStageExecution `json:"execution"`
	Request   *entity.ApprovalRequest        `json:"request"`
}

// RequestServiceConfig tunes decision handling
type RequestServiceConfig struct {
	// EnforceAssignment restricts decisions to the assigned approver, or to
	// holders of the assigned role for ROLE stages
	EnforceAssignment bool
}

// RequestService runs approval requests through their workflow stages
type RequestService interface {
	SubmitRequest(ctx context.Context, actor entity.Actor, in SubmitRequestInput) (*RequestDetail, error)
	ProcessApproval(ctx context.Context, actor entity.Actor, in ProcessApprovalInput) (*RequestDetail, error)
	CancelRequest(ctx context.Context, actor entity.Actor, requestID, reason string) (*RequestDetail, error)
	GetPendingApprovals(ctx context.Context, approverID string, roles []string) ([]*PendingApproval, error)
	GetRequestByID(ctx context.Context, id string) (*RequestDetail, error)
	GetRequestByEntity(ctx context.Context, entityType, entityID string) (*RequestDetail, error)
	ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
}

type requestServiceImpl struct {
	workflowRepo  port.WorkflowRepository
	stageRepo     port.StageRepository
	requestRepo   port.RequestRepository
	executionRepo port.ExecutionRepository
	resolver      *ApproverResolver
	conditions    *ConditionEvaluator
	txManager     port.TransactionManager
	publisher     EventPublisher
	logger        Logger
	cfg           RequestServiceConfig
	tracer        trace.Tracer
}

// NewRequestService creates a new RequestService
func NewRequestService(
	workflowRepo port.WorkflowRepository,
	stageRepo port.StageRepository,
	requestRepo port.RequestRepository,
	executionRepo port.ExecutionRepository,
	resolver *ApproverResolver,
	conditions *ConditionEvaluator,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
	cfg RequestServiceConfig,
) RequestService {
	return &requestServiceImpl{
		workflowRepo:  workflowRepo,
		stageRepo:     stageRepo,
		requestRepo:   requestRepo,
		executionRepo: executionRepo,
		resolver:      resolver,
		conditions:    conditions,
		txManager:     txManager,
		publisher:     publisher,
		logger:        logger,
		cfg:           cfg,
		tracer:        otel.Tracer(tracerName),
	}
}

// SubmitRequest creates a pending request and activates its first stage
func (s *requestServiceImpl) SubmitRequest(ctx context.Context, actor entity.Actor, in SubmitRequestInput) (detail *RequestDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "approval.SubmitRequest", trace.WithAttributes(
		attribute.String("workflow.code", in.WorkflowCode),
		attribute.String("entity.type", in.EntityType),
		attribute.String("entity.id", in.EntityID),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}
	switch {
	case strings.TrimSpace(in.WorkflowCode) == "":
		return nil, apperr.BadRequest("workflowCode is required")
	case strings.TrimSpace(in.EntityType) == "":
		return nil, apperr.BadRequest("entityType is required")
	case strings.TrimSpace(in.EntityID) == "":
		return nil, apperr.BadRequest("entityId is required")
	}

	wf, err := s.workflowRepo.GetByCode(ctx, in.WorkflowCode)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperr.NotFound("workflow %q", in.WorkflowCode)
	}
	if !wf.IsActive {
		return nil, apperr.BadRequest("workflow %q is inactive", wf.Code)
	}
	if wf.EntityType != in.EntityType {
		return nil, apperr.BadRequest("workflow %q gates %s, not %s", wf.Code, wf.EntityType, in.EntityType)
	}

	pending, err := s.requestRepo.HasPending(ctx, in.EntityType, in.EntityID)
	if err != nil {
		return nil, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return nil, apperr.Conflict("%s %s already has a pending approval request", in.EntityType, in.EntityID)
	}

	stages, err := s.stages(ctx, wf)
	if err != nil {
		return nil, err
	}

	now := utcNow()
	req := &entity.ApprovalRequest{
		ID:           newID(),
		WorkflowID:   wf.ID,
		WorkflowCode: wf.Code,
		EntityType:   in.EntityType,
		EntityID:     in.EntityID,
		ForumID:      in.ForumID,
		AreaID:       in.AreaID,
		UnitID:       in.UnitID,
		RequestedBy:  actor.UserID,
		RequestedAt:  now,
		Status:       entity.RequestStatusPending,
		Attributes:   in.Attributes,
		UpdatedAt:    now,
	}

	// Attributes are fixed from here on, so a condition that cannot be
	// evaluated now would block the request at that stage forever
	if err := s.checkConditions(stages, req); err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, wf, stages, req, 0, now)
	if err != nil {
		return nil, err
	}

	batch := newEventBatch(actor.UserID)
	batch.add(event.AggregateApprovalRequest, req.ID, event.RequestSubmitted{
		RequestID:    req.ID,
		WorkflowCode: req.WorkflowCode,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		RequestedBy:  req.RequestedBy,
	})
	if err := s.applyPlan(ctx, req, plan, entity.SystemActorID, now, batch); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		for _, exec := range plan.executions {
			if err := s.executionRepo.Create(txCtx, exec); err != nil {
				return fmt.Errorf("create execution for stage %d: %w", exec.StageOrder, err)
			}
		}
		s.txManager.AfterCommit(txCtx, func() { s.publish(ctx, batch.events) })
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit request", "error", err, "workflow_code", wf.Code, "entity_id", in.EntityID)
		return nil, err
	}

	s.logger.Info("Approval request submitted",
		"request_id", req.ID,
		"workflow_code", wf.Code,
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
		"status", req.Status,
	)
	return &RequestDetail{Request: req, Executions: plan.executions}, nil
}

// ProcessApproval records a decision on the current stage and advances the request
func (s *requestServiceImpl) ProcessApproval(ctx context.Context, actor entity.Actor, in ProcessApprovalInput) (detail *RequestDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "approval.ProcessApproval", trace.WithAttributes(
		attribute.String("execution.id", in.ExecutionID),
		attribute.String("decision", string(in.Decision)),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}
	if !in.Decision.IsValid() {
		return nil, apperr.BadRequest("unknown decision %q", in.Decision)
	}

	exec, err := s.executionRepo.GetByID(ctx, in.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	if exec == nil {
		return nil, apperr.NotFound("stage execution %s", in.ExecutionID)
	}
	if exec.Status != entity.ExecutionStatusPending {
		return nil, apperr.Conflict("stage execution %s is already %s", exec.ID, exec.Status)
	}

	req, err := s.requestRepo.GetByID(ctx, exec.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("approval request %s", exec.RequestID)
	}
	if req.Status.IsTerminal() {
		return nil, apperr.Conflict("approval request %s is already %s", req.ID, req.Status)
	}
	if !req.IsAt(exec.StageOrder) {
		return nil, apperr.Conflict("stage %d is out of sequence for request %s", exec.StageOrder, req.ID)
	}
	if err := s.authorize(actor, exec); err != nil {
		return nil, err
	}

	wf, err := s.workflowRepo.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperr.NotFound("workflow %s", req.WorkflowID)
	}

	now := utcNow()
	expectedStage := exec.StageOrder
	batch := newEventBatch(actor.UserID)

	trigger := workflow.TriggerApprove
	if in.Decision == entity.DecisionReject {
		trigger = workflow.TriggerReject
	}
	if err := fireExecution(ctx, exec, trigger); err != nil {
		return nil, err
	}
	exec.Decision = in.Decision
	exec.ReviewedBy = actor.UserID
	exec.ReviewedAt = &now
	exec.Comments = in.Comments

	plan := &activationPlan{}
	if in.Decision == entity.DecisionReject {
		if err := fireRequest(ctx, req, workflow.TriggerReject, now); err != nil {
			return nil, err
		}
		batch.add(event.AggregateApprovalRequest, req.ID, event.RequestRejected{
			RequestID:       req.ID,
			WorkflowCode:    req.WorkflowCode,
			EntityType:      req.EntityType,
			EntityID:        req.EntityID,
			RejectedBy:      actor.UserID,
			RejectionReason: in.Comments,
			RejectedAt:      now,
		})
	} else {
		if wf.RequiresAllStages {
			stages, err := s.stages(ctx, wf)
			if err != nil {
				return nil, err
			}
			plan, err = s.plan(ctx, wf, stages, req, nextStageIndex(stages, exec.StageOrder), now)
			if err != nil {
				return nil, err
			}
		} else {
			plan.finalized = true
		}
		if err := s.applyPlan(ctx, req, plan, actor.UserID, now, batch); err != nil {
			return nil, err
		}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.executionRepo.CompleteIfPending(txCtx, exec)
		if err != nil {
			return fmt.Errorf("complete execution: %w", err)
		}
		if !ok {
			return apperr.Conflict("stage execution %s was decided concurrently", exec.ID)
		}

		ok, err = s.requestRepo.UpdateIfAt(txCtx, req, expectedStage)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if !ok {
			return apperr.Conflict("approval request %s moved past stage %d", req.ID, expectedStage)
		}

		for _, next := range plan.executions {
			if err := s.executionRepo.Create(txCtx, next); err != nil {
				return fmt.Errorf("create execution for stage %d: %w", next.StageOrder, err)
			}
		}
		s.txManager.AfterCommit(txCtx, func() { s.publish(ctx, batch.events) })
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to process approval", "error", err, "execution_id", exec.ID, "request_id", req.ID)
		return nil, err
	}

	s.logger.Info("Stage decision recorded",
		"request_id", req.ID,
		"execution_id", exec.ID,
		"stage_order", exec.StageOrder,
		"decision", in.Decision,
		"reviewed_by", actor.UserID,
		"request_status", req.Status,
	)
	return s.detail(ctx, req)
}

// CancelRequest withdraws a pending request out of band
func (s *requestServiceImpl) CancelRequest(ctx context.Context, actor entity.Actor, requestID, reason string) (detail *RequestDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "approval.CancelRequest", trace.WithAttributes(
		attribute.String("request.id", requestID),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}

	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("approval request %s", requestID)
	}
	if req.Status.IsTerminal() || req.CurrentStageOrder == nil {
		return nil, apperr.Conflict("approval request %s is already %s", req.ID, req.Status)
	}

	executions, err := s.executionRepo.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	now := utcNow()
	expectedStage := *req.CurrentStageOrder

	var open *entity.ApprovalStageExecution
	for _, exec := range executions {
		if exec.Status == entity.ExecutionStatusPending {
			open = exec
			break
		}
	}
	if open != nil {
		if err := fireExecution(ctx, open, workflow.TriggerSkip); err != nil {
			return nil, err
		}
		open.ReviewedBy = actor.UserID
		open.ReviewedAt = &now
		open.Comments = "request cancelled"
		if reason != "" {
			open.Comments += ": " + reason
		}
	}
	if err := fireRequest(ctx, req, workflow.TriggerCancel, now); err != nil {
		return nil, err
	}

	batch := newEventBatch(actor.UserID)
	batch.add(event.AggregateApprovalRequest, req.ID, event.RequestCancelled{
		RequestID:    req.ID,
		WorkflowCode: req.WorkflowCode,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		CancelledBy:  actor.UserID,
		Reason:       reason,
		CancelledAt:  now,
	})

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if open != nil {
			ok, err := s.executionRepo.CompleteIfPending(txCtx, open)
			if err != nil {
				return fmt.Errorf("skip execution: %w", err)
			}
			if !ok {
				return apperr.Conflict("stage execution %s was decided concurrently", open.ID)
			}
		}
		ok, err := s.requestRepo.UpdateIfAt(txCtx, req, expectedStage)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if !ok {
			return apperr.Conflict("approval request %s moved past stage %d", req.ID, expectedStage)
		}
		s.txManager.AfterCommit(txCtx, func() { s.publish(ctx, batch.events) })
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to cancel request", "error", err, "request_id", req.ID)
		return nil, err
	}

	s.logger.Info("Approval request cancelled", "request_id", req.ID, "cancelled_by", actor.UserID)
	return &RequestDetail{Request: req, Executions: executions}, nil
}

// GetPendingApprovals lists executions awaiting approverID or any of roles
func (s *requestServiceImpl) GetPendingApprovals(ctx context.Context, approverID string, roles []string) ([]*PendingApproval, error) {
	if approverID == "" && len(roles) == 0 {
		return nil, apperr.BadRequest("approverId or roles is required")
	}

	executions, err := s.executionRepo.ListPending(ctx, approverID, roles)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}

	requests := make(map[string]*entity.ApprovalRequest)
	result := make([]*PendingApproval, 0, len(executions))
	for _, exec := range executions {
		req, ok := requests[exec.RequestID]
		if !ok {
			req, err = s.requestRepo.GetByID(ctx, exec.RequestID)
			if err != nil {
				return nil, fmt.Errorf("get request: %w", err)
			}
			requests[exec.RequestID] = req
		}
		if req == nil || !req.IsAt(exec.StageOrder) {
			continue
		}
		result = append(result, &PendingApproval{Execution: exec, Request: req})
	}
	return result, nil
}

func (s *requestServiceImpl) GetRequestByID(ctx context.Context, id string) (*RequestDetail, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("approval request %s", id)
	}
	return s.detail(ctx, req)
}

// GetRequestByEntity returns the latest request raised for the entity
func (s *requestServiceImpl) GetRequestByEntity(ctx context.Context, entityType, entityID string) (*RequestDetail, error) {
	req, err := s.requestRepo.GetLatestByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("get request by entity: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("approval request for %s %s", entityType, entityID)
	}
	return s.detail(ctx, req)
}

func (s *requestServiceImpl) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.requestRepo.List(ctx, filter)
}

func (s *requestServiceImpl) authorize(actor entity.Actor, exec *entity.ApprovalStageExecution) error {
	if !s.cfg.EnforceAssignment {
		return nil
	}
	if exec.AssignedRoleID != "" {
		if !actor.HasRole(exec.AssignedRoleID) {
			return apperr.Unauthorized("stage %d requires role %s", exec.StageOrder, exec.AssignedRoleID)
		}
		return nil
	}
	if exec.AssignedApproverID != actor.UserID {
		return apperr.Unauthorized("stage %d is assigned to another approver", exec.StageOrder)
	}
	return nil
}

func (s *requestServiceImpl) stages(ctx context.Context, wf *entity.ApprovalWorkflow) ([]*entity.ApprovalStage, error) {
	stages, err := s.stageRepo.ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	if len(stages) == 0 {
		return nil, apperr.BadRequest("workflow %q has no stages", wf.Code)
	}
	sortStages(stages)
	return stages, nil
}

func (s *requestServiceImpl) detail(ctx context.Context, req *entity.ApprovalRequest) (*RequestDetail, error) {
	executions, err := s.executionRepo.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return &RequestDetail{Request: req, Executions: executions}, nil
}

func (s *requestServiceImpl) publish(ctx context.Context, events []event.Event) {
	for _, evt := range events {
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Error("Failed to publish event", "error", err, "event_type", evt.Type, "event_id", evt.ID)
		}
	}
}

func (s *requestServiceImpl) checkConditions(stages []*entity.ApprovalStage, req *entity.ApprovalRequest) error {
	for _, stage := range stages {
		if _, err := s.conditions.Evaluate(stage.Condition, req); err != nil {
			return apperr.BadRequest("stage %d: %s", stage.StageOrder, err.Error())
		}
	}
	return nil
}

// activationPlan is the outcome of walking stages forward from some index.
// It only describes writes; nothing is persisted while planning.
type activationPlan struct {
	executions []*entity.ApprovalStageExecution
	pending    *entity.ApprovalStageExecution
	finalized  bool
}

// plan activates stages starting at stages[from]. Stages whose condition is
// false are skipped, as are optional stages without a resolvable approver.
// Auto-approve stages are approved by the system actor. The walk stops at the
// first stage needing a human, or finalizes when none remain.
func (s *requestServiceImpl) plan(ctx context.Context, wf *entity.ApprovalWorkflow, stages []*entity.ApprovalStage, req *entity.ApprovalRequest, from int, now time.Time) (*activationPlan, error) {
	p := &activationPlan{}

	for _, stage := range stages[from:] {
		exec := &entity.ApprovalStageExecution{
			ID:         newID(),
			RequestID:  req.ID,
			StageID:    stage.ID,
			StageOrder: stage.StageOrder,
			Status:     entity.ExecutionStatusPending,
			CreatedAt:  now,
		}

		applies, err := s.conditions.Evaluate(stage.Condition, req)
		if err != nil {
			return nil, apperr.BadRequest("stage %d: %s", stage.StageOrder, err.Error())
		}
		if !applies {
			if err := skip(ctx, exec, now, "condition not met"); err != nil {
				return nil, err
			}
			p.executions = append(p.executions, exec)
			continue
		}

		assignment, err := s.resolver.Resolve(ctx, stage, req)
		if err != nil && !errors.Is(err, errUnresolvable) {
			return nil, fmt.Errorf("resolve approver for stage %d: %w", stage.StageOrder, err)
		}
		exec.AssignedApproverID = assignment.ApproverID
		exec.AssignedRoleID = assignment.RoleID

		if stage.AutoApprove {
			if err := fireExecution(ctx, exec, workflow.TriggerApprove); err != nil {
				return nil, err
			}
			exec.Decision = entity.DecisionApprove
			exec.ReviewedBy = entity.SystemActorID
			exec.ReviewedAt = &now
			exec.Comments = "auto-approved"
			p.executions = append(p.executions, exec)
			if !wf.RequiresAllStages {
				p.finalized = true
				return p, nil
			}
			continue
		}

		if err != nil {
			if !stage.IsOptional {
				return nil, apperr.BadRequest("stage %d: %s", stage.StageOrder, err.Error())
			}
			if err := skip(ctx, exec, now, err.Error()); err != nil {
				return nil, err
			}
			p.executions = append(p.executions, exec)
			continue
		}

		p.executions = append(p.executions, exec)
		p.pending = exec
		return p, nil
	}

	p.finalized = true
	return p, nil
}

// applyPlan moves req according to p and queues the matching events
func (s *requestServiceImpl) applyPlan(ctx context.Context, req *entity.ApprovalRequest, p *activationPlan, approvedBy string, now time.Time, batch *eventBatch) error {
	if p.finalized {
		if err := fireRequest(ctx, req, workflow.TriggerApprove, now); err != nil {
			return err
		}
		batch.add(event.AggregateApprovalRequest, req.ID, event.RequestApproved{
			RequestID:    req.ID,
			WorkflowCode: req.WorkflowCode,
			EntityType:   req.EntityType,
			EntityID:     req.EntityID,
			ApprovedBy:   approvedBy,
			ApprovedAt:   now,
		})
		return nil
	}

	if _, err := workflow.RequestLifecycle.Next(ctx, workflow.State(req.Status), workflow.TriggerAdvance); err != nil {
		return apperr.Conflict("approval request %s: %s", req.ID, err.Error())
	}
	order := p.pending.StageOrder
	req.CurrentStageOrder = &order
	req.UpdatedAt = now

	batch.add(event.AggregateApprovalRequest, req.ID, event.StageAssigned{
		RequestID:          req.ID,
		ExecutionID:        p.pending.ID,
		WorkflowCode:       req.WorkflowCode,
		EntityType:         req.EntityType,
		EntityID:           req.EntityID,
		StageOrder:         order,
		AssignedApproverID: p.pending.AssignedApproverID,
		AssignedRoleID:     p.pending.AssignedRoleID,
	})
	return nil
}

func fireExecution(ctx context.Context, exec *entity.ApprovalStageExecution, trigger workflow.Trigger) error {
	next, err := workflow.ExecutionLifecycle.Next(ctx, workflow.State(exec.Status), trigger)
	if err != nil {
		return apperr.Conflict("stage execution %s: %s", exec.ID, err.Error())
	}
	exec.Status = entity.ExecutionStatus(next)
	return nil
}

// fireRequest applies a terminal transition to req
func fireRequest(ctx context.Context, req *entity.ApprovalRequest, trigger workflow.Trigger, now time.Time) error {
	next, err := workflow.RequestLifecycle.Next(ctx, workflow.State(req.Status), trigger)
	if err != nil {
		return apperr.Conflict("approval request %s: %s", req.ID, err.Error())
	}
	req.Status = entity.RequestStatus(next)
	req.CurrentStageOrder = nil
	req.CompletedAt = &now
	req.UpdatedAt = now
	return nil
}

func skip(ctx context.Context, exec *entity.ApprovalStageExecution, now time.Time, reason string) error {
	if err := fireExecution(ctx, exec, workflow.TriggerSkip); err != nil {
		return err
	}
	exec.ReviewedBy = entity.SystemActorID
	exec.ReviewedAt = &now
	exec.Comments = reason
	return nil
}

func nextStageIndex(stages []*entity.ApprovalStage, after int) int {
	for i, stage := range stages {
		if stage.StageOrder > after {
			return i
		}
	}
	return len(stages)
}

func sortStages(stages []*entity.ApprovalStage) {
	sort.Slice(stages, func(i, j int) bool { return stages[i].StageOrder < stages[j].StageOrder })
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// eventBatch collects the events of one command; later events carry the
// correlation id of the first
type eventBatch struct {
	userID string
	events []event.Event
}

func newEventBatch(userID string) *eventBatch {
	return &eventBatch{userID: userID}
}

func (b *eventBatch) add(aggregateType, aggregateID string, payload event.Payload) {
	if len(b.events) == 0 {
		b.events = append(b.events, event.New(aggregateType, aggregateID, payload, b.userID))
		return
	}
	b.events = append(b.events, event.Caused(b.events[0], aggregateType, aggregateID, payload, b.userID))
}
