// Package outbox implements the transactional outbox: durable event records
// co-committed with state changes, drained by a lock-gated background
// publisher.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Aggregate types recognized by topic routing.
const (
	AggregatePayment = "PAYMENT"
)

// Event is one durable outbox record. Rows are append-only; the only update
// ever applied is setting ProcessedAt exactly once after a confirmed publish.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewEvent builds a pending event for the given aggregate.
func NewEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) Event {
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

// Store defines persistence operations for outbox events.
type Store interface {
	// Append inserts the event. It must run inside the caller's transaction
	// so the event commits atomically with the state change it announces.
	Append(ctx context.Context, ev Event) error

	// FetchPending returns up to limit unprocessed events, oldest first by
	// CreatedAt.
	FetchPending(ctx context.Context, limit int) ([]Event, error)

	// MarkProcessed sets ProcessedAt for the event in its own transaction.
	// Re-issuing it for an already processed event is harmless.
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}
