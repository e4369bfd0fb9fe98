package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// ErrClosed is returned by Publish once Close has been called
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher is the in-process event bus. Handlers are invoked in registration
// order; a failing handler never stops later handlers nor reaches the publisher.
// Delivery is at-most-once: nothing is persisted or retried.
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Publish hands the event to its handlers. In the default mode it returns
	// as soon as a delivery goroutine is scheduled; with WithSyncDelivery it
	// returns after every handler has run. Handler errors are only logged.
	Publish(ctx context.Context, evt event.Event) error

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Wait blocks until in-flight deliveries finish
	Wait()

	// Close rejects new publishes and waits for in-flight deliveries
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger
	sync     bool

	// nextID numbers auto-named handlers; guarded by mu and never reused
	nextID uint64

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithSyncDelivery runs handlers in the publisher's goroutine
func WithSyncDelivery() Option {
	return func(d *eventDispatcher) {
		d.sync = true
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler for an event type with an auto-generated name
func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.subscribe(eventType, "", handler)
}

// SubscribeNamed registers a handler with a specific name for debugging
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.subscribe(eventType, name, handler)
}

func (d *eventDispatcher) subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("handler-%d", d.nextID)
		d.nextID++
	}

	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// Unsubscribe removes a handler by name
func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.handlers[eventType]
	filtered := make([]HandlerInfo, 0, len(handlers))

	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}

	d.handlers[eventType] = filtered

	if d.logger != nil {
		d.logger.Info("Handler unregistered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// Publish delivers the event to its handlers
func (d *eventDispatcher) Publish(ctx context.Context, evt event.Event) error {
	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot publish event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return ErrClosed
	}

	// Snapshot so later Subscribe calls do not affect this delivery
	d.mu.RLock()
	handlers := append([]HandlerInfo(nil), d.handlers[evt.Type]...)
	d.mu.RUnlock()

	if d.logger != nil {
		d.logger.Info("Publishing event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"aggregate_id", evt.AggregateID,
			"handler_count", len(handlers),
		)
	}

	if len(handlers) == 0 {
		return nil
	}

	// Handlers must outlive the caller's request
	deliveryCtx := context.WithoutCancel(ctx)

	if d.sync {
		d.deliver(deliveryCtx, evt, handlers)
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(deliveryCtx, evt, handlers)
	}()

	return nil
}

// deliver runs handlers one after another, isolating their failures
func (d *eventDispatcher) deliver(ctx context.Context, evt event.Event, handlers []HandlerInfo) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "event.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", evt.Type.String()),
		attribute.String("event.id", evt.ID),
		attribute.Int("event.handlers", len(handlers)),
	)

	failed := 0
	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			failed++
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"error", err,
				)
			}
		}
	}

	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d handler(s) failed", failed))
	}
}

// ListHandlers returns registered handlers for an event type
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:      h.Name,
			EventType: h.EventType,
		}
	}

	return result
}

// Wait blocks until every scheduled delivery has finished
func (d *eventDispatcher) Wait() {
	d.wg.Wait()
}

// Close shuts down the dispatcher and waits for in-flight deliveries to complete
func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for in-flight deliveries")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler.Handle(ctx, evt)
}

const tracerName = "github.com/garyjia/membership-approvals/dispatcher"
