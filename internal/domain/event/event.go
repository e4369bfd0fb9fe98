package event

import (
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the envelope version stamped on every event
const CurrentVersion = 1

// Aggregate types carried on the envelope
const (
	AggregateApprovalRequest = "ApprovalRequest"
	AggregateAgent           = "Agent"
	AggregateMember          = "Member"
)

// Payload is the event-specific body. Each event type has exactly one payload
// struct; consumers type-switch on it instead of probing fields.
type Payload interface {
	EventType() Type
}

// Metadata carries the acting principal and the causal chain
type Metadata struct {
	UserID        string `json:"userId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Event is an immutable record of something that happened to an aggregate.
// It is handed around by value and never mutated after construction.
type Event struct {
	ID            string    `json:"eventId"`
	Type          Type      `json:"eventType"`
	AggregateID   string    `json:"aggregateId"`
	AggregateType string    `json:"aggregateType"`
	Payload       Payload   `json:"payload"`
	Metadata      Metadata  `json:"metadata"`
	OccurredAt    time.Time `json:"occurredAt"`
	Version       int       `json:"version"`
}

// New creates an event whose type is taken from the payload
func New(aggregateType, aggregateID string, payload Payload, userID string) Event {
	id := newID()
	return Event{
		ID:            id,
		Type:          payload.EventType(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       payload,
		Metadata:      Metadata{UserID: userID, CorrelationID: id},
		OccurredAt:    time.Now().UTC(),
		Version:       CurrentVersion,
	}
}

// Caused creates an event that continues the correlation chain of cause
func Caused(cause Event, aggregateType, aggregateID string, payload Payload, userID string) Event {
	evt := New(aggregateType, aggregateID, payload, userID)
	evt.Metadata.CorrelationID = cause.Metadata.CorrelationID
	return evt
}

// newID is swapped in tests that need deterministic identifiers
var newID = func() string { return uuid.New().String() }
