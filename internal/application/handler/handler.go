// Package handler holds the module-local consumers of approval outcomes.
// Each handler filters on workflow code and entity type and ignores
// everything else, so unrelated modules can share the same event types.
package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher is the producer side of the event bus
type EventPublisher interface {
	Publish(ctx context.Context, evt event.Event) error
}

var newID = func() string { return uuid.New().String() }

// matches reports whether an approval outcome targets the given workflow and entity type
func matches(workflowCode, entityType, wantCode, wantType string) bool {
	return entityType == wantType && (wantCode == "" || workflowCode == wantCode)
}

func publishAll(ctx context.Context, publisher EventPublisher, logger Logger, events ...event.Event) {
	for _, evt := range events {
		if err := publisher.Publish(ctx, evt); err != nil {
			logger.Error("Failed to publish event", "error", err, "event_type", evt.Type, "event_id", evt.ID)
		}
	}
}
