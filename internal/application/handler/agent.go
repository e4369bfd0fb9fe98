package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// ActivateAgentOnApproval moves an approved agent to ACTIVE and issues its invitation
type ActivateAgentOnApproval struct {
	agents        port.AgentRepository
	invitations   port.InvitationRepository
	txManager     port.TransactionManager
	publisher     EventPublisher
	logger        Logger
	workflowCode  string
	invitationTTL time.Duration
}

// NewActivateAgentOnApproval creates the handler. An empty workflowCode accepts
// any workflow gating agents.
func NewActivateAgentOnApproval(
	agents port.AgentRepository,
	invitations port.InvitationRepository,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
	workflowCode string,
	invitationTTL time.Duration,
) *ActivateAgentOnApproval {
	return &ActivateAgentOnApproval{
		agents:        agents,
		invitations:   invitations,
		txManager:     txManager,
		publisher:     publisher,
		logger:        logger,
		workflowCode:  workflowCode,
		invitationTTL: invitationTTL,
	}
}

// Handle implements dispatcher.Handler
func (h *ActivateAgentOnApproval) Handle(ctx context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.RequestApproved)
	if !ok || !matches(p.WorkflowCode, p.EntityType, h.workflowCode, entity.EntityTypeAgent) {
		return nil
	}

	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		agent, err := h.agents.GetByID(txCtx, p.EntityID)
		if err != nil {
			return fmt.Errorf("get agent: %w", err)
		}
		if agent == nil {
			return fmt.Errorf("agent %s not found", p.EntityID)
		}
		if agent.Status != entity.LifecycleStatusPendingApproval {
			h.logger.Info("Agent already processed, skipping activation", "agent_id", agent.ID, "status", agent.Status)
			return nil
		}

		now := time.Now().UTC()
		agent.Status = entity.LifecycleStatusActive
		agent.ActivatedAt = &now
		agent.UpdatedAt = now

		moved, err := h.agents.UpdateStatusFrom(txCtx, agent, entity.LifecycleStatusPendingApproval)
		if err != nil {
			return fmt.Errorf("activate agent: %w", err)
		}
		if !moved {
			return nil
		}

		inv := &entity.Invitation{
			ID:        newID(),
			AgentID:   agent.ID,
			Email:     agent.Email,
			Token:     newID(),
			Status:    entity.InvitationStatusPending,
			ExpiresAt: now.Add(h.invitationTTL),
			CreatedAt: now,
		}
		if err := h.invitations.Create(txCtx, inv); err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}

		activated := event.Caused(evt, event.AggregateAgent, agent.ID, event.AgentActivated{
			AgentID:      agent.ID,
			UnitID:       agent.UnitID,
			InvitationID: inv.ID,
			ActivatedAt:  now,
		}, entity.SystemActorID)
		h.txManager.AfterCommit(txCtx, func() { publishAll(ctx, h.publisher, h.logger, activated) })

		h.logger.Info("Agent activated", "agent_id", agent.ID, "request_id", p.RequestID, "approved_by", p.ApprovedBy)
		return nil
	})
}

// RejectAgentOnRejection moves a rejected agent to REJECTED
type RejectAgentOnRejection struct {
	agents       port.AgentRepository
	txManager    port.TransactionManager
	publisher    EventPublisher
	logger       Logger
	workflowCode string
}

// NewRejectAgentOnRejection creates the handler
func NewRejectAgentOnRejection(
	agents port.AgentRepository,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
	workflowCode string,
) *RejectAgentOnRejection {
	return &RejectAgentOnRejection{
		agents:       agents,
		txManager:    txManager,
		publisher:    publisher,
		logger:       logger,
		workflowCode: workflowCode,
	}
}

// Handle implements dispatcher.Handler
func (h *RejectAgentOnRejection) Handle(ctx context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.RequestRejected)
	if !ok || !matches(p.WorkflowCode, p.EntityType, h.workflowCode, entity.EntityTypeAgent) {
		return nil
	}

	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		agent, err := h.agents.GetByID(txCtx, p.EntityID)
		if err != nil {
			return fmt.Errorf("get agent: %w", err)
		}
		if agent == nil {
			return fmt.Errorf("agent %s not found", p.EntityID)
		}
		if agent.Status != entity.LifecycleStatusPendingApproval {
			return nil
		}

		agent.Status = entity.LifecycleStatusRejected
		agent.RejectionReason = p.RejectionReason
		agent.UpdatedAt = time.Now().UTC()

		moved, err := h.agents.UpdateStatusFrom(txCtx, agent, entity.LifecycleStatusPendingApproval)
		if err != nil {
			return fmt.Errorf("reject agent: %w", err)
		}
		if !moved {
			return nil
		}

		rejected := event.Caused(evt, event.AggregateAgent, agent.ID, event.AgentRejected{
			AgentID: agent.ID,
			Reason:  p.RejectionReason,
		}, entity.SystemActorID)
		h.txManager.AfterCommit(txCtx, func() { publishAll(ctx, h.publisher, h.logger, rejected) })

		h.logger.Info("Agent rejected", "agent_id", agent.ID, "rejected_by", p.RejectedBy)
		return nil
	})
}
