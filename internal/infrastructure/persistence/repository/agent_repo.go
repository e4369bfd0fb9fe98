package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/sqlite"
)

const agentColumns = `id, name, email, phone, unit_id, status, rejection_reason,
	activated_at, created_by, created_at, updated_at`

// AgentRepository implements port.AgentRepository
type AgentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *sql.DB, logger *zap.Logger) port.AgentRepository {
	return &AgentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an agent
func (r *AgentRepository) Create(ctx context.Context, a *entity.Agent) error {
	query := `INSERT INTO agents (` + agentColumns + `) VALUES (` + placeholders(11) + `)`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		a.ID,
		a.Name,
		nullString(a.Email),
		nullString(a.Phone),
		a.UnitID,
		a.Status,
		nullString(a.RejectionReason),
		nullTime(a.ActivatedAt),
		a.CreatedBy,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create agent", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*entity.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ?`

	a, err := scanAgent(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get agent", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// List returns agents, newest first
func (r *AgentRepository) List(ctx context.Context, limit, offset int) ([]*entity.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list agents", zap.Error(err))
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*entity.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateStatusFrom writes the status fields only while the stored status is from
func (r *AgentRepository) UpdateStatusFrom(ctx context.Context, a *entity.Agent, from string) (bool, error) {
	query := `
		UPDATE agents
		SET status = ?, rejection_reason = ?, activated_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		a.Status,
		nullString(a.RejectionReason),
		nullTime(a.ActivatedAt),
		a.UpdatedAt,
		a.ID,
		from,
	)
	if err != nil {
		r.logger.Error("Failed to update agent status", zap.String("id", a.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update agent status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func scanAgent(row rowScanner) (*entity.Agent, error) {
	var a entity.Agent
	var email, phone, reason sql.NullString
	var activatedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.Name,
		&email,
		&phone,
		&a.UnitID,
		&a.Status,
		&reason,
		&activatedAt,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Email = email.String
	a.Phone = phone.String
	a.RejectionReason = reason.String
	a.ActivatedAt = timePtr(activatedAt)
	return &a, nil
}

// InvitationRepository implements port.InvitationRepository
type InvitationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sql.DB, logger *zap.Logger) port.InvitationRepository {
	return &InvitationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *entity.Invitation) error {
	query := `
		INSERT INTO invitations (id, agent_id, email, token, status, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		inv.ID,
		inv.AgentID,
		nullString(inv.Email),
		inv.Token,
		inv.Status,
		inv.ExpiresAt,
		inv.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invitation", zap.String("agent_id", inv.AgentID), zap.Error(err))
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetByAgentID returns the latest invitation issued to an agent
func (r *InvitationRepository) GetByAgentID(ctx context.Context, agentID string) (*entity.Invitation, error) {
	query := `
		SELECT id, agent_id, email, token, status, expires_at, created_at
		FROM invitations
		WHERE agent_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var inv entity.Invitation
	var email sql.NullString
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, agentID).Scan(
		&inv.ID,
		&inv.AgentID,
		&email,
		&inv.Token,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invitation", zap.String("agent_id", agentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	inv.Email = email.String
	return &inv, nil
}

// Verify interface compliance
var (
	_ port.AgentRepository      = (*AgentRepository)(nil)
	_ port.InvitationRepository = (*InvitationRepository)(nil)
)
