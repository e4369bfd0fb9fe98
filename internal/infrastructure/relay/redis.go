// Package relay mirrors domain events onto a Redis stream so consumers in
// other processes can follow approval outcomes. It is best effort and not an
// outbox: events published while Redis is down are logged and dropped.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/domain/event"
)

// Options configures the Redis connection and the target stream
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Stream   string
	MaxLen   int64
}

// StreamWriter is the subset of *redis.Client the relay needs
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// StreamRelay appends every event it receives to a Redis stream
type StreamRelay struct {
	writer StreamWriter
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamRelay creates a relay writing to opts.Stream
func NewStreamRelay(writer StreamWriter, opts Options, logger *zap.Logger) *StreamRelay {
	stream := opts.Stream
	if stream == "" {
		stream = "membership:events"
	}
	return &StreamRelay{
		writer: writer,
		stream: stream,
		maxLen: opts.MaxLen,
		logger: logger,
	}
}

// Handle implements dispatcher.Handler
func (r *StreamRelay) Handle(ctx context.Context, evt event.Event) error {
	envelope, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"eventId":       evt.ID,
			"eventType":     evt.Type.String(),
			"aggregateType": evt.AggregateType,
			"aggregateId":   evt.AggregateID,
			"correlationId": evt.Metadata.CorrelationID,
			"envelope":      string(envelope),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.writer.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("relay event %s to %s: %w", evt.ID, r.stream, err)
	}

	r.logger.Debug("Event relayed",
		zap.String("stream", r.stream),
		zap.String("stream_id", id),
		zap.String("event_type", evt.Type.String()),
		zap.String("event_id", evt.ID))
	return nil
}
