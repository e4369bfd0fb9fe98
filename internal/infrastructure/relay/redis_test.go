package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/domain/event"
)

type mockStreamWriter struct {
	xaddFunc func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	added    []*redis.XAddArgs
}

func (m *mockStreamWriter) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	m.added = append(m.added, a)
	if m.xaddFunc != nil {
		return m.xaddFunc(ctx, a)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func approvedEvent() event.Event {
	return event.New(event.AggregateApprovalRequest, "req-1", event.RequestApproved{
		RequestID:    "req-1",
		WorkflowCode: "member_registration",
		EntityType:   "Member",
		EntityID:     "member-1",
		ApprovedBy:   "A1",
	}, "A1")
}

func TestStreamRelay_Handle(t *testing.T) {
	writer := &mockStreamWriter{}
	r := NewStreamRelay(writer, Options{Stream: "approvals", MaxLen: 1000}, zap.NewNop())
	evt := approvedEvent()

	require.NoError(t, r.Handle(context.Background(), evt))
	require.Len(t, writer.added, 1)

	args := writer.added[0]
	assert.Equal(t, "approvals", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, "approval.request.approved", values["eventType"])
	assert.Equal(t, evt.Metadata.CorrelationID, values["correlationId"])

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(values["envelope"].(string)), &envelope))
	assert.Equal(t, evt.ID, envelope["eventId"])
	payload := envelope["payload"].(map[string]interface{})
	assert.Equal(t, "member-1", payload["entityId"])
}

func TestStreamRelay_Defaults(t *testing.T) {
	writer := &mockStreamWriter{}
	r := NewStreamRelay(writer, Options{}, zap.NewNop())

	require.NoError(t, r.Handle(context.Background(), approvedEvent()))
	assert.Equal(t, "membership:events", writer.added[0].Stream)
	assert.Zero(t, writer.added[0].MaxLen)
	assert.False(t, writer.added[0].Approx)
}

func TestStreamRelay_WriteError(t *testing.T) {
	writer := &mockStreamWriter{xaddFunc: func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
		return redis.NewStringResult("", errors.New("connection refused"))
	}}
	r := NewStreamRelay(writer, Options{Stream: "approvals"}, zap.NewNop())

	err := r.Handle(context.Background(), approvedEvent())
	assert.ErrorContains(t, err, "connection refused")
}
