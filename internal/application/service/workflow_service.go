package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

// WorkflowDefinition is a workflow together with its stages ordered by StageOrder
type WorkflowDefinition struct {
	Workflow *entity.ApprovalWorkflow `json:"workflow"`
	Stages   []*entity.ApprovalStage  `json:"stages"`
}

// StageInput describes one stage of a new workflow
type StageInput struct {
	StageOrder     int                   `json:"stageOrder" yaml:"stage_order"`
	Name           string                `json:"name" yaml:"name"`
	ApproverType   entity.ApproverType   `json:"approverType" yaml:"approver_type"`
	RoleID         string                `json:"roleId" yaml:"role_id"`
	UserID         string                `json:"userId" yaml:"user_id"`
	HierarchyLevel entity.HierarchyLevel `json:"hierarchyLevel" yaml:"hierarchy_level"`
	IsOptional     bool                  `json:"isOptional" yaml:"is_optional"`
	AutoApprove    bool                  `json:"autoApprove" yaml:"auto_approve"`
	Condition      string                `json:"condition" yaml:"condition"`
}

// CreateWorkflowInput describes a new workflow. Nil flags default to true.
type CreateWorkflowInput struct {
	Code              string       `json:"workflowCode" yaml:"code"`
	Name              string       `json:"name" yaml:"name"`
	Description       string       `json:"description" yaml:"description"`
	Module            string       `json:"module" yaml:"module"`
	EntityType        string       `json:"entityType" yaml:"entity_type"`
	IsActive          *bool        `json:"isActive" yaml:"is_active"`
	RequiresAllStages *bool        `json:"requiresAllStages" yaml:"requires_all_stages"`
	Stages            []StageInput `json:"stages" yaml:"stages"`
}

// UpdateWorkflowInput is a metadata patch; nil fields are left unchanged
type UpdateWorkflowInput struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Module            *string `json:"module"`
	IsActive          *bool   `json:"isActive"`
	RequiresAllStages *bool   `json:"requiresAllStages"`
}

// WorkflowService manages approval workflow definitions
type WorkflowService interface {
	CreateWorkflow(ctx context.Context, actor entity.Actor, in CreateWorkflowInput) (*WorkflowDefinition, error)
	UpdateWorkflow(ctx context.Context, actor entity.Actor, id string, in UpdateWorkflowInput) (*WorkflowDefinition, error)
	GetWorkflowByID(ctx context.Context, id string) (*WorkflowDefinition, error)
	GetWorkflowByCode(ctx context.Context, code string) (*WorkflowDefinition, error)
	ListActiveWorkflows(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error)
	ListAllWorkflows(ctx context.Context) ([]*entity.ApprovalWorkflow, error)
}

type workflowServiceImpl struct {
	workflowRepo port.WorkflowRepository
	stageRepo    port.StageRepository
	conditions   *ConditionEvaluator
	txManager    port.TransactionManager
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	workflowRepo port.WorkflowRepository,
	stageRepo port.StageRepository,
	conditions *ConditionEvaluator,
	txManager port.TransactionManager,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		workflowRepo: workflowRepo,
		stageRepo:    stageRepo,
		conditions:   conditions,
		txManager:    txManager,
		logger:       logger,
	}
}

// CreateWorkflow validates the definition and persists workflow and stages atomically
func (s *workflowServiceImpl) CreateWorkflow(ctx context.Context, actor entity.Actor, in CreateWorkflowInput) (*WorkflowDefinition, error) {
	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}

	def, err := s.buildDefinition(actor, in)
	if err != nil {
		return nil, err
	}

	existing, err := s.workflowRepo.GetByCode(ctx, def.Workflow.Code)
	if err != nil {
		return nil, fmt.Errorf("check workflow code: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("workflow code %q already exists", def.Workflow.Code)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.workflowRepo.Create(txCtx, def.Workflow); err != nil {
			return fmt.Errorf("create workflow: %w", err)
		}
		if err := s.stageRepo.CreateMany(txCtx, def.Stages); err != nil {
			return fmt.Errorf("create stages: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "workflow_code", def.Workflow.Code)
		return nil, err
	}

	s.logger.Info("Workflow created",
		"workflow_id", def.Workflow.ID,
		"workflow_code", def.Workflow.Code,
		"stages", len(def.Stages),
	)
	return def, nil
}

func (s *workflowServiceImpl) buildDefinition(actor entity.Actor, in CreateWorkflowInput) (*WorkflowDefinition, error) {
	code := strings.TrimSpace(in.Code)
	switch {
	case code == "":
		return nil, apperr.BadRequest("workflowCode is required")
	case strings.TrimSpace(in.Module) == "":
		return nil, apperr.BadRequest("module is required")
	case strings.TrimSpace(in.EntityType) == "":
		return nil, apperr.BadRequest("entityType is required")
	case len(in.Stages) == 0:
		return nil, apperr.BadRequest("workflow %q has no stages", code)
	}

	now := utcNow()
	wf := &entity.ApprovalWorkflow{
		ID:                newID(),
		Code:              code,
		Name:              in.Name,
		Description:       in.Description,
		Module:            in.Module,
		EntityType:        in.EntityType,
		IsActive:          boolOr(in.IsActive, true),
		RequiresAllStages: boolOr(in.RequiresAllStages, true),
		CreatedBy:         actor.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if wf.Name == "" {
		wf.Name = code
	}

	seen := make(map[int]bool, len(in.Stages))
	stages := make([]*entity.ApprovalStage, 0, len(in.Stages))
	for _, si := range in.Stages {
		if seen[si.StageOrder] {
			return nil, apperr.BadRequest("duplicate stage order %d", si.StageOrder)
		}
		seen[si.StageOrder] = true

		stage := &entity.ApprovalStage{
			ID:             newID(),
			WorkflowID:     wf.ID,
			StageOrder:     si.StageOrder,
			Name:           si.Name,
			ApproverType:   si.ApproverType,
			RoleID:         si.RoleID,
			UserID:         si.UserID,
			HierarchyLevel: si.HierarchyLevel,
			IsOptional:     si.IsOptional,
			AutoApprove:    si.AutoApprove,
			Condition:      strings.TrimSpace(si.Condition),
			CreatedAt:      now,
		}
		if err := stage.Validate(); err != nil {
			return nil, apperr.BadRequest("%s", err.Error())
		}
		if stage.Condition != "" {
			if err := s.conditions.Compile(stage.Condition); err != nil {
				return nil, apperr.BadRequest("stage %d: %s", stage.StageOrder, err.Error())
			}
		}
		stages = append(stages, stage)
	}
	sortStages(stages)

	return &WorkflowDefinition{Workflow: wf, Stages: stages}, nil
}

// UpdateWorkflow applies a metadata patch; stages are never touched
func (s *workflowServiceImpl) UpdateWorkflow(ctx context.Context, actor entity.Actor, id string, in UpdateWorkflowInput) (*WorkflowDefinition, error) {
	if !actor.IsAuthenticated() {
		return nil, apperr.Unauthorized("no acting principal")
	}

	wf, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperr.NotFound("workflow %s", id)
	}

	if in.Name != nil {
		wf.Name = *in.Name
	}
	if in.Description != nil {
		wf.Description = *in.Description
	}
	if in.Module != nil {
		if strings.TrimSpace(*in.Module) == "" {
			return nil, apperr.BadRequest("module cannot be empty")
		}
		wf.Module = *in.Module
	}
	if in.IsActive != nil {
		wf.IsActive = *in.IsActive
	}
	if in.RequiresAllStages != nil {
		wf.RequiresAllStages = *in.RequiresAllStages
	}
	wf.UpdatedAt = utcNow()

	if err := s.workflowRepo.Update(ctx, wf); err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", id)
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	s.logger.Info("Workflow updated", "workflow_id", id, "updated_by", actor.UserID, "is_active", wf.IsActive)
	return s.withStages(ctx, wf)
}

// GetWorkflowByID returns the workflow and its ordered stages
func (s *workflowServiceImpl) GetWorkflowByID(ctx context.Context, id string) (*WorkflowDefinition, error) {
	wf, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperr.NotFound("workflow %s", id)
	}
	return s.withStages(ctx, wf)
}

// GetWorkflowByCode returns the workflow and its ordered stages
func (s *workflowServiceImpl) GetWorkflowByCode(ctx context.Context, code string) (*WorkflowDefinition, error) {
	wf, err := s.workflowRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperr.NotFound("workflow %q", code)
	}
	return s.withStages(ctx, wf)
}

func (s *workflowServiceImpl) ListActiveWorkflows(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error) {
	return s.workflowRepo.ListActive(ctx, module)
}

func (s *workflowServiceImpl) ListAllWorkflows(ctx context.Context) ([]*entity.ApprovalWorkflow, error) {
	return s.workflowRepo.ListAll(ctx)
}

func (s *workflowServiceImpl) withStages(ctx context.Context, wf *entity.ApprovalWorkflow) (*WorkflowDefinition, error) {
	stages, err := s.stageRepo.ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	sortStages(stages)
	return &WorkflowDefinition{Workflow: wf, Stages: stages}, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
