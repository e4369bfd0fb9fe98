package dispatcher

import (
	"context"

	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// Handler processes domain events
type Handler interface {
	Handle(ctx context.Context, evt event.Event) error
}

// HandlerFunc adapts a plain function to Handler
type HandlerFunc func(ctx context.Context, evt event.Event) error

// Handle calls f(ctx, evt)
func (f HandlerFunc) Handle(ctx context.Context, evt event.Event) error {
	return f(ctx, evt)
}

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
