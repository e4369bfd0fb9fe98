package service

import (
	"context"
	"time"

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

const tracerName = "github.com/garyjia/membership-approvals/service"

// newID is swapped in tests that need deterministic identifiers
var newID = func() string { return uuid.New().String() }

func utcNow() time.Time {
	return time.Now().UTC()
}
