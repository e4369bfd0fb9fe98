package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/sqlite"
)

const workflowColumns = `id, code, name, description, module, entity_type, is_active,
	requires_all_stages, created_by, created_at, updated_at`

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a workflow; a duplicate code is a conflict
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows (` + workflowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		wf.ID,
		wf.Code,
		wf.Name,
		nullString(wf.Description),
		wf.Module,
		wf.EntityType,
		wf.IsActive,
		wf.RequiresAllStages,
		nullString(wf.CreatedBy),
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if sqlite.IsUniqueViolation(err) {
		return apperr.Conflict("workflow code %q already exists", wf.Code)
	}
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("code", wf.Code), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// Update writes the mutable header fields of a workflow
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.ApprovalWorkflow) error {
	query := `
		UPDATE approval_workflows
		SET name = ?, description = ?, is_active = ?, requires_all_stages = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		wf.Name,
		nullString(wf.Description),
		wf.IsActive,
		wf.RequiresAllStages,
		wf.UpdatedAt,
		wf.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.String("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("workflow %s", wf.ID)
	}
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalWorkflow, error) {
	return r.getOne(ctx, "id", id)
}

// GetByCode retrieves a workflow by its unique code
func (r *WorkflowRepository) GetByCode(ctx context.Context, code string) (*entity.ApprovalWorkflow, error) {
	return r.getOne(ctx, "code", code)
}

func (r *WorkflowRepository) getOne(ctx context.Context, column, value string) (*entity.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE ` + column + ` = ?`

	wf, err := scanWorkflow(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String(column, value), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// ListActive returns active workflows, optionally limited to one module
func (r *WorkflowRepository) ListActive(ctx context.Context, module string) ([]*entity.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE is_active = 1`
	var args []interface{}
	if module != "" {
		query += ` AND module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY code ASC`
	return r.list(ctx, query, args...)
}

// ListAll returns every workflow including inactive ones
func (r *WorkflowRepository) ListAll(ctx context.Context) ([]*entity.ApprovalWorkflow, error) {
	return r.list(ctx, `SELECT `+workflowColumns+` FROM approval_workflows ORDER BY code ASC`)
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalWorkflow, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.ApprovalWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func scanWorkflow(row rowScanner) (*entity.ApprovalWorkflow, error) {
	var wf entity.ApprovalWorkflow
	var description, createdBy sql.NullString

	err := row.Scan(
		&wf.ID,
		&wf.Code,
		&wf.Name,
		&description,
		&wf.Module,
		&wf.EntityType,
		&wf.IsActive,
		&wf.RequiresAllStages,
		&createdBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	wf.CreatedBy = createdBy.String
	return &wf, nil
}

// StageRepository implements port.StageRepository
type StageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStageRepository creates a new stage repository
func NewStageRepository(db *sql.DB, logger *zap.Logger) port.StageRepository {
	return &StageRepository{
		db:     db,
		logger: logger,
	}
}

// CreateMany inserts all stages of a workflow; callers wrap it in the
// workflow's transaction
func (r *StageRepository) CreateMany(ctx context.Context, stages []*entity.ApprovalStage) error {
	query := `
		INSERT INTO approval_stages (
			id, workflow_id, stage_order, name, approver_type, role_id, user_id,
			hierarchy_level, is_optional, auto_approve, condition_expr, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := sqlite.ExecutorFrom(ctx, r.db)
	for _, s := range stages {
		_, err := exec.ExecContext(ctx, query,
			s.ID,
			s.WorkflowID,
			s.StageOrder,
			nullString(s.Name),
			string(s.ApproverType),
			nullString(s.RoleID),
			nullString(s.UserID),
			nullString(string(s.HierarchyLevel)),
			s.IsOptional,
			s.AutoApprove,
			nullString(s.Condition),
			s.CreatedAt,
		)
		if sqlite.IsUniqueViolation(err) {
			return apperr.Conflict("duplicate stage order %d", s.StageOrder)
		}
		if err != nil {
			r.logger.Error("Failed to create stage",
				zap.String("workflow_id", s.WorkflowID), zap.Int("stage_order", s.StageOrder), zap.Error(err))
			return fmt.Errorf("failed to create stage: %w", err)
		}
	}
	return nil
}

// ListByWorkflow returns the stages of a workflow ordered by StageOrder
func (r *StageRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*entity.ApprovalStage, error) {
	query := `
		SELECT id, workflow_id, stage_order, name, approver_type, role_id, user_id,
			hierarchy_level, is_optional, auto_approve, condition_expr, created_at
		FROM approval_stages
		WHERE workflow_id = ?
		ORDER BY stage_order ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list stages", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*entity.ApprovalStage
	for rows.Next() {
		var s entity.ApprovalStage
		var name, roleID, userID, level, condition sql.NullString
		var approverType string

		err := rows.Scan(
			&s.ID,
			&s.WorkflowID,
			&s.StageOrder,
			&name,
			&approverType,
			&roleID,
			&userID,
			&level,
			&s.IsOptional,
			&s.AutoApprove,
			&condition,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}

		s.Name = name.String
		s.ApproverType = entity.ApproverType(approverType)
		s.RoleID = roleID.String
		s.UserID = userID.String
		s.HierarchyLevel = entity.HierarchyLevel(level.String)
		s.Condition = condition.String
		stages = append(stages, &s)
	}
	return stages, rows.Err()
}

// Verify interface compliance
var (
	_ port.WorkflowRepository = (*WorkflowRepository)(nil)
	_ port.StageRepository    = (*StageRepository)(nil)
)
