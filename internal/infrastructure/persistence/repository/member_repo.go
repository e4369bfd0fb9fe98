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

const memberColumns = `id, name, email, agent_id, unit_id, status, registration_fee_cents,
	rejection_reason, activated_at, created_by, created_at, updated_at`

// MemberRepository implements port.MemberRepository
type MemberRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sql.DB, logger *zap.Logger) port.MemberRepository {
	return &MemberRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a member
func (r *MemberRepository) Create(ctx context.Context, m *entity.Member) error {
	query := `INSERT INTO members (` + memberColumns + `) VALUES (` + placeholders(12) + `)`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		m.ID,
		m.Name,
		nullString(m.Email),
		m.AgentID,
		m.UnitID,
		m.Status,
		m.RegistrationFeeCents,
		nullString(m.RejectionReason),
		nullTime(m.ActivatedAt),
		m.CreatedBy,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create member", zap.String("id", m.ID), zap.Error(err))
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*entity.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = ?`

	m, err := scanMember(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get member", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// List returns members, newest first
func (r *MemberRepository) List(ctx context.Context, limit, offset int) ([]*entity.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list members", zap.Error(err))
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*entity.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateStatusFrom writes the status fields only while the stored status is from
func (r *MemberRepository) UpdateStatusFrom(ctx context.Context, m *entity.Member, from string) (bool, error) {
	query := `
		UPDATE members
		SET status = ?, rejection_reason = ?, activated_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		m.Status,
		nullString(m.RejectionReason),
		nullTime(m.ActivatedAt),
		m.UpdatedAt,
		m.ID,
		from,
	)
	if err != nil {
		r.logger.Error("Failed to update member status", zap.String("id", m.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update member status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func scanMember(row rowScanner) (*entity.Member, error) {
	var m entity.Member
	var email, reason sql.NullString
	var activatedAt sql.NullTime

	err := row.Scan(
		&m.ID,
		&m.Name,
		&email,
		&m.AgentID,
		&m.UnitID,
		&m.Status,
		&m.RegistrationFeeCents,
		&reason,
		&activatedAt,
		&m.CreatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Email = email.String
	m.RejectionReason = reason.String
	m.ActivatedAt = timePtr(activatedAt)
	return &m, nil
}

// LedgerRepository implements port.LedgerRepository
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sql.DB, logger *zap.Logger) port.LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Post writes all lines of one transaction after checking debits equal credits
func (r *LedgerRepository) Post(ctx context.Context, entries []*entity.LedgerEntry) error {
	var debits, credits int64
	for _, e := range entries {
		switch e.Side {
		case entity.LedgerSideDebit:
			debits += e.AmountCents
		case entity.LedgerSideCredit:
			credits += e.AmountCents
		default:
			return fmt.Errorf("ledger entry %s: unknown side %q", e.ID, e.Side)
		}
	}
	if len(entries) == 0 || debits != credits {
		return fmt.Errorf("unbalanced ledger transaction: debits %d, credits %d", debits, credits)
	}

	query := `
		INSERT INTO ledger_entries (
			id, transaction_id, account_code, side, amount_cents, reference,
			description, posted_by, posted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := sqlite.ExecutorFrom(ctx, r.db)
	for _, e := range entries {
		_, err := exec.ExecContext(ctx, query,
			e.ID,
			e.TransactionID,
			e.AccountCode,
			e.Side,
			e.AmountCents,
			e.Reference,
			nullString(e.Description),
			e.PostedBy,
			e.PostedAt,
		)
		if err != nil {
			r.logger.Error("Failed to post ledger entry",
				zap.String("transaction_id", e.TransactionID), zap.Error(err))
			return fmt.Errorf("failed to post ledger entry: %w", err)
		}
	}
	return nil
}

// ListByReference returns the entries posted against a business reference
func (r *LedgerRepository) ListByReference(ctx context.Context, reference string) ([]*entity.LedgerEntry, error) {
	query := `
		SELECT id, transaction_id, account_code, side, amount_cents, reference,
			description, posted_by, posted_at
		FROM ledger_entries
		WHERE reference = ?
		ORDER BY posted_at ASC, side DESC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, reference)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.LedgerEntry
	for rows.Next() {
		var e entity.LedgerEntry
		var description sql.NullString
		err := rows.Scan(
			&e.ID,
			&e.TransactionID,
			&e.AccountCode,
			&e.Side,
			&e.AmountCents,
			&e.Reference,
			&description,
			&e.PostedBy,
			&e.PostedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Description = description.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var (
	_ port.MemberRepository = (*MemberRepository)(nil)
	_ port.LedgerRepository = (*LedgerRepository)(nil)
)
