// Package payment implements the mock payment step, the payment-completed
// event, and its idempotent consumption.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the outcome of a payment attempt. The mock gateway always
// succeeds, so SUCCESS is the only value written by this core.
type Status string

const StatusSuccess Status = "SUCCESS"

// Payment records a charge against an order. Created once, immutable after
// creation.
type Payment struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Method    string
	Status    Status
	CreatedAt time.Time
}

// Store defines persistence operations for payments.
type Store interface {
	Create(ctx context.Context, p *Payment) error
}

// ProcessedEvent is one row of the idempotency ledger. Its existence for a
// payment ID is the sole gate against re-applying effects; rows are never
// deleted.
type ProcessedEvent struct {
	PaymentID   uuid.UUID
	EventType   string
	ProcessedAt time.Time
}

// ProcessedEventStore defines persistence for the idempotency ledger.
type ProcessedEventStore interface {
	Exists(ctx context.Context, paymentID uuid.UUID) (bool, error)

	// Insert records the marker. It reports false without error when another
	// consumer already inserted the same payment ID.
	Insert(ctx context.Context, rec ProcessedEvent) (bool, error)

	// ListIDs returns every recorded payment ID, used to warm the negative
	// lookup filter at startup.
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Notifier is the fire-and-forget notification sink invoked after an order
// is confirmed paid. Failures are not propagated.
type Notifier interface {
	NotifyOrderPaid(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal)
}
