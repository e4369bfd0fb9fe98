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

const requestColumns = `id, workflow_id, workflow_code, entity_type, entity_id, forum_id, area_id,
	unit_id, requested_by, requested_at, status, current_stage_order, attributes, completed_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a request. A second PENDING request for the same entity
// violates uq_requests_pending_entity and surfaces as a conflict.
func (r *RequestRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	attrs, err := encodeAttributes(req.Attributes)
	if err != nil {
		return err
	}

	query := `INSERT INTO approval_requests (` + requestColumns + `) VALUES (` + placeholders(15) + `)`

	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		req.ID,
		req.WorkflowID,
		req.WorkflowCode,
		req.EntityType,
		req.EntityID,
		nullString(req.ForumID),
		nullString(req.AreaID),
		nullString(req.UnitID),
		req.RequestedBy,
		req.RequestedAt,
		string(req.Status),
		nullInt(req.CurrentStageOrder),
		attrs,
		nullTime(req.CompletedAt),
		req.UpdatedAt,
	)
	if sqlite.IsUniqueViolation(err) {
		return apperr.Conflict("%s %s already has a pending approval request", req.EntityType, req.EntityID)
	}
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("entity_id", req.EntityID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = ?`

	req, err := scanRequest(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// GetLatestByEntity returns the most recently requested row for an entity
func (r *RequestRepository) GetLatestByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY requested_at DESC, rowid DESC
		LIMIT 1
	`

	req, err := scanRequest(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, entityType, entityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by entity",
			zap.String("entity_type", entityType), zap.String("entity_id", entityID), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// HasPending reports whether the entity has a PENDING request
func (r *RequestRepository) HasPending(ctx context.Context, entityType, entityID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_requests
			WHERE entity_type = ? AND entity_id = ? AND status = 'PENDING'
		)
	`

	var exists bool
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, entityType, entityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending request: %w", err)
	}
	return exists, nil
}

// List returns requests matching filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	var conditions []string
	var args []interface{}

	if filter.WorkflowCode != "" {
		conditions = append(conditions, "workflow_code = ?")
		args = append(args, filter.WorkflowCode)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RequestedBy != "" {
		conditions = append(conditions, "requested_by = ?")
		args = append(args, filter.RequestedBy)
	}

	query := `SELECT ` + requestColumns + ` FROM approval_requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY requested_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateIfAt writes the request's progress only while the stored row is still
// PENDING at expectedStage
func (r *RequestRepository) UpdateIfAt(ctx context.Context, req *entity.ApprovalRequest, expectedStage int) (bool, error) {
	query := `
		UPDATE approval_requests
		SET status = ?, current_stage_order = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING' AND current_stage_order = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		string(req.Status),
		nullInt(req.CurrentStageOrder),
		nullTime(req.CompletedAt),
		req.UpdatedAt,
		req.ID,
		expectedStage,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("id", req.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func scanRequest(row rowScanner) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	var forumID, areaID, unitID, attrs sql.NullString
	var status string
	var stage sql.NullInt64
	var completedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.WorkflowID,
		&req.WorkflowCode,
		&req.EntityType,
		&req.EntityID,
		&forumID,
		&areaID,
		&unitID,
		&req.RequestedBy,
		&req.RequestedAt,
		&status,
		&stage,
		&attrs,
		&completedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.ForumID = forumID.String
	req.AreaID = areaID.String
	req.UnitID = unitID.String
	req.Status = entity.RequestStatus(status)
	req.CurrentStageOrder = intPtr(stage)
	req.CompletedAt = timePtr(completedAt)
	if req.Attributes, err = decodeAttributes(attrs); err != nil {
		return nil, err
	}
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
