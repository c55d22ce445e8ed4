package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietct/orderflow/internal/domain/audit"
)

// Status is the lifecycle state of an order. Transitions only move forward:
// PENDING may become PAID or CANCELLED, and PAID is never reversed.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Order represents a customer order together with its line items.
// TotalAmount always equals the sum of Quantity * PriceAtOrder over Items.
type Order struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Status      Status
	TotalAmount decimal.Decimal
	Items       []Item
	audit.Fields
}

// Item is a single order line. PriceAtOrder is the product price snapshot
// taken when the order was placed; later catalog price changes never affect
// historical totals.
type Item struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	Quantity     int
	PriceAtOrder decimal.Decimal
}

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// NotFoundError indicates a requested order does not exist.
type NotFoundError struct {
	OrderID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID uuid.UUID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// MarkPaid transitions the order to PAID only if it is not PAID already
	// (compare-then-set, never an unconditional overwrite). It reports whether
	// the transition happened.
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
}
