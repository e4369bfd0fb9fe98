package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// LedgerAccounts names the accounts a registration fee is posted against
type LedgerAccounts struct {
	Receivable string
	FeeIncome  string
}

// ActivateMemberOnApproval moves an approved member to ACTIVE and posts the
// registration fee to the ledger in the same transaction
type ActivateMemberOnApproval struct {
	members      port.MemberRepository
	ledger       port.LedgerRepository
	txManager    port.TransactionManager
	publisher    EventPublisher
	logger       Logger
	workflowCode string
	accounts     LedgerAccounts
}

// NewActivateMemberOnApproval creates the handler
func NewActivateMemberOnApproval(
	members port.MemberRepository,
	ledger port.LedgerRepository,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
	workflowCode string,
	accounts LedgerAccounts,
) *ActivateMemberOnApproval {
	return &ActivateMemberOnApproval{
		members:      members,
		ledger:       ledger,
		txManager:    txManager,
		publisher:    publisher,
		logger:       logger,
		workflowCode: workflowCode,
		accounts:     accounts,
	}
}

// Handle implements dispatcher.Handler
func (h *ActivateMemberOnApproval) Handle(ctx context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.RequestApproved)
	if !ok || !matches(p.WorkflowCode, p.EntityType, h.workflowCode, entity.EntityTypeMember) {
		return nil
	}

	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		member, err := h.members.GetByID(txCtx, p.EntityID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member == nil {
			return fmt.Errorf("member %s not found", p.EntityID)
		}
		if member.Status != entity.LifecycleStatusPendingApproval {
			h.logger.Info("Member already processed, skipping activation", "member_id", member.ID, "status", member.Status)
			return nil
		}

		now := time.Now().UTC()
		member.Status = entity.LifecycleStatusActive
		member.ActivatedAt = &now
		member.UpdatedAt = now

		moved, err := h.members.UpdateStatusFrom(txCtx, member, entity.LifecycleStatusPendingApproval)
		if err != nil {
			return fmt.Errorf("activate member: %w", err)
		}
		if !moved {
			return nil
		}

		var txID string
		if member.RegistrationFeeCents > 0 {
			txID = newID()
			if err := h.ledger.Post(txCtx, h.feeEntries(txID, member, p.ApprovedBy, now)); err != nil {
				return fmt.Errorf("post registration fee: %w", err)
			}
		}

		activated := event.Caused(evt, event.AggregateMember, member.ID, event.MemberActivated{
			MemberID:      member.ID,
			AgentID:       member.AgentID,
			TransactionID: txID,
			AmountCents:   member.RegistrationFeeCents,
			ActivatedAt:   now,
		}, entity.SystemActorID)
		h.txManager.AfterCommit(txCtx, func() { publishAll(ctx, h.publisher, h.logger, activated) })

		h.logger.Info("Member activated",
			"member_id", member.ID,
			"request_id", p.RequestID,
			"fee_cents", member.RegistrationFeeCents,
			"transaction_id", txID,
		)
		return nil
	})
}

// feeEntries builds the balanced debit/credit pair for one registration fee
func (h *ActivateMemberOnApproval) feeEntries(txID string, m *entity.Member, postedBy string, at time.Time) []*entity.LedgerEntry {
	reference := "member:" + m.ID
	description := fmt.Sprintf("Registration fee for member %s", m.Name)
	return []*entity.LedgerEntry{
		{
			ID:            newID(),
			TransactionID: txID,
			AccountCode:   h.accounts.Receivable,
			Side:          entity.LedgerSideDebit,
			AmountCents:   m.RegistrationFeeCents,
			Reference:     reference,
			Description:   description,
			PostedBy:      postedBy,
			PostedAt:      at,
		},
		{
			ID:            newID(),
			TransactionID: txID,
			AccountCode:   h.accounts.FeeIncome,
			Side:          entity.LedgerSideCredit,
			AmountCents:   m.RegistrationFeeCents,
			Reference:     reference,
			Description:   description,
			PostedBy:      postedBy,
			PostedAt:      at,
		},
	}
}

// RejectMemberOnRejection moves a rejected member to REJECTED
type RejectMemberOnRejection struct {
	members      port.MemberRepository
	txManager    port.TransactionManager
	publisher    EventPublisher
	logger       Logger
	workflowCode string
}

// NewRejectMemberOnRejection creates the handler
func NewRejectMemberOnRejection(
	members port.MemberRepository,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
	workflowCode string,
) *RejectMemberOnRejection {
	return &RejectMemberOnRejection{
		members:      members,
		txManager:    txManager,
		publisher:    publisher,
		logger:       logger,
		workflowCode: workflowCode,
	}
}

// Handle implements dispatcher.Handler
func (h *RejectMemberOnRejection) Handle(ctx context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.RequestRejected)
	if !ok || !matches(p.WorkflowCode, p.EntityType, h.workflowCode, entity.EntityTypeMember) {
		return nil
	}

	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		member, err := h.members.GetByID(txCtx, p.EntityID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member == nil {
			return fmt.Errorf("member %s not found", p.EntityID)
		}
		if member.Status != entity.LifecycleStatusPendingApproval {
			return nil
		}

		member.Status = entity.LifecycleStatusRejected
		member.RejectionReason = p.RejectionReason
		member.UpdatedAt = time.Now().UTC()

		moved, err := h.members.UpdateStatusFrom(txCtx, member, entity.LifecycleStatusPendingApproval)
		if err != nil {
			return fmt.Errorf("reject member: %w", err)
		}
		if !moved {
			return nil
		}

		rejected := event.Caused(evt, event.AggregateMember, member.ID, event.MemberRejected{
			MemberID: member.ID,
			Reason:   p.RejectionReason,
		}, entity.SystemActorID)
		h.txManager.AfterCommit(txCtx, func() { publishAll(ctx, h.publisher, h.logger, rejected) })

		h.logger.Info("Member rejected", "member_id", member.ID, "rejected_by", p.RejectedBy)
		return nil
	})
}
