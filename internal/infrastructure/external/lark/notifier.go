package lark

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// MessageSender sends a text message to a Lark user or chat
type MessageSender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// ApproverNotifier tells approvers that a stage is waiting for them. It
// handles approval.stage.assigned and ignores everything else.
type ApproverNotifier struct {
	sender MessageSender
	cfg    Config
	logger *zap.Logger
}

// NewApproverNotifier creates the notifier
func NewApproverNotifier(sender MessageSender, cfg Config, logger *zap.Logger) *ApproverNotifier {
	if cfg.ReceiveIDType == "" {
		cfg.ReceiveIDType = "user_id"
	}
	return &ApproverNotifier{
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// Handle implements dispatcher.Handler
func (n *ApproverNotifier) Handle(ctx context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.StageAssigned)
	if !ok {
		return nil
	}

	receiveIDType, receiveID := n.cfg.ReceiveIDType, p.AssignedApproverID
	if receiveID == "" {
		chatID, ok := n.cfg.RoleChats[p.AssignedRoleID]
		if !ok {
			n.logger.Info("No chat configured for role, skipping notification",
				zap.String("role_id", p.AssignedRoleID),
				zap.String("request_id", p.RequestID))
			return nil
		}
		receiveIDType, receiveID = "chat_id", chatID
	}

	if _, err := n.sender.SendText(ctx, receiveIDType, receiveID, n.message(p)); err != nil {
		return fmt.Errorf("notify approver of request %s: %w", p.RequestID, err)
	}
	return nil
}

func (n *ApproverNotifier) message(p event.StageAssigned) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval needed: %s %s (workflow %s, stage %d)", p.EntityType, p.EntityID, p.WorkflowCode, p.StageOrder)
	if p.AssignedRoleID != "" {
		fmt.Fprintf(&b, "\nAssigned to role %s", p.AssignedRoleID)
	}
	if n.cfg.BaseURL != "" {
		fmt.Fprintf(&b, "\n%s/api/executions/%s/decision", strings.TrimRight(n.cfg.BaseURL, "/"), p.ExecutionID)
	}
	return b.String()
}
