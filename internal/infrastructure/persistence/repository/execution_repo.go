package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/sqlite"
)

const executionColumns = `id, request_id, stage_id, stage_order, assigned_approver_id, assigned_role_id,
	status, decision, reviewed_by, reviewed_at, comments, created_at`

// ExecutionRepository implements port.ExecutionRepository
type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a new stage execution repository
func NewExecutionRepository(db *sql.DB, logger *zap.Logger) port.ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an execution; each stage runs at most once per request
func (r *ExecutionRepository) Create(ctx context.Context, exec *entity.ApprovalStageExecution) error {
	query := `INSERT INTO approval_stage_executions (` + executionColumns + `) VALUES (` + placeholders(12) + `)`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		exec.ID,
		exec.RequestID,
		exec.StageID,
		exec.StageOrder,
		nullString(exec.AssignedApproverID),
		nullString(exec.AssignedRoleID),
		string(exec.Status),
		nullString(string(exec.Decision)),
		nullString(exec.ReviewedBy),
		nullTime(exec.ReviewedAt),
		nullString(exec.Comments),
		exec.CreatedAt,
	)
	if sqlite.IsUniqueViolation(err) {
		return apperr.Conflict("stage %d of request %s already has an execution", exec.StageOrder, exec.RequestID)
	}
	if err != nil {
		r.logger.Error("Failed to create execution",
			zap.String("request_id", exec.RequestID), zap.Int("stage_order", exec.StageOrder), zap.Error(err))
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// GetByID retrieves an execution by ID
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalStageExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM approval_stage_executions WHERE id = ?`

	exec, err := scanExecution(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get execution by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return exec, nil
}

// ListByRequest returns a request's executions ordered by StageOrder
func (r *ExecutionRepository) ListByRequest(ctx context.Context, requestID string) ([]*entity.ApprovalStageExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM approval_stage_executions
		WHERE request_id = ?
		ORDER BY stage_order ASC
	`
	return r.list(ctx, query, requestID)
}

// ListPending returns PENDING executions assigned to approverID or any of roles
func (r *ExecutionRepository) ListPending(ctx context.Context, approverID string, roles []string) ([]*entity.ApprovalStageExecution, error) {
	var matches []string
	var args []interface{}

	if approverID != "" {
		matches = append(matches, "assigned_approver_id = ?")
		args = append(args, approverID)
	}
	if len(roles) > 0 {
		matches = append(matches, "assigned_role_id IN ("+placeholders(len(roles))+")")
		for _, role := range roles {
			args = append(args, role)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + executionColumns + `
		FROM approval_stage_executions
		WHERE status = 'PENDING' AND (` + strings.Join(matches, " OR ") + `)
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, args...)
}

// CompleteIfPending records a decision or skip while the stored row is PENDING
func (r *ExecutionRepository) CompleteIfPending(ctx context.Context, exec *entity.ApprovalStageExecution) (bool, error) {
	query := `
		UPDATE approval_stage_executions
		SET status = ?, decision = ?, reviewed_by = ?, reviewed_at = ?, comments = ?
		WHERE id = ? AND status = 'PENDING'
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		string(exec.Status),
		nullString(string(exec.Decision)),
		nullString(exec.ReviewedBy),
		nullTime(exec.ReviewedAt),
		nullString(exec.Comments),
		exec.ID,
	)
	if err != nil {
		r.logger.Error("Failed to complete execution", zap.String("id", exec.ID), zap.Error(err))
		return false, fmt.Errorf("failed to complete execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *ExecutionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalStageExecution, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list executions", zap.Error(err))
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*entity.ApprovalStageExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

func scanExecution(row rowScanner) (*entity.ApprovalStageExecution, error) {
	var exec entity.ApprovalStageExecution
	var approverID, roleID, decision, reviewedBy, comments sql.NullString
	var status string
	var reviewedAt sql.NullTime

	err := row.Scan(
		&exec.ID,
		&exec.RequestID,
		&exec.StageID,
		&exec.StageOrder,
		&approverID,
		&roleID,
		&status,
		&decision,
		&reviewedBy,
		&reviewedAt,
		&comments,
		&exec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.AssignedApproverID = approverID.String
	exec.AssignedRoleID = roleID.String
	exec.Status = entity.ExecutionStatus(status)
	exec.Decision = entity.Decision(decision.String)
	exec.ReviewedBy = reviewedBy.String
	exec.ReviewedAt = timePtr(reviewedAt)
	exec.Comments = comments.String
	return &exec, nil
}

// Verify interface compliance
var _ port.ExecutionRepository = (*ExecutionRepository)(nil)
