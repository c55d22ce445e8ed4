// Package inventory holds the per-product stock ledger and its optimistic
// reservation primitive.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vietct/orderflow/internal/domain/audit"
)

// Inventory tracks the available stock for a single product. Version is a
// monotonically incrementing counter used as the compare-and-swap token:
// every successful decrement advances it by exactly one.
type Inventory struct {
	ProductID         uuid.UUID
	AvailableQuantity int
	Version           int64
	audit.Fields
}

// NotFoundError indicates no inventory row exists for a product.
type NotFoundError struct {
	ProductID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("inventory for product %s not found", e.ProductID)
}

// InsufficientStockError indicates the available quantity cannot cover a
// requested reservation.
type InsufficientStockError struct {
	ProductID uuid.UUID
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// VersionConflictError indicates a concurrent transaction advanced the row
// version between this reservation's read and its conditional write.
type VersionConflictError struct {
	ProductID uuid.UUID
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("inventory version conflict for product %s", e.ProductID)
}

// Store defines persistence operations for inventory rows.
type Store interface {
	GetByProduct(ctx context.Context, productID uuid.UUID) (*Inventory, error)

	// DecrementCAS performs the conditional decrement: it subtracts quantity
	// and bumps the version only if the stored version still equals the given
	// one and enough stock remains. A *VersionConflictError is returned when
	// the row was touched concurrently.
	DecrementCAS(ctx context.Context, productID uuid.UUID, quantity int, version int64) error
}

// Ledger exposes the single reservation operation over the store. No row
// lock is held across the read-then-write gap; conflicting writers are
// detected by the version token at write time.
type Ledger struct {
	store Store
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve decrements the available quantity for a product by quantity.
// It returns *NotFoundError when no row exists, *InsufficientStockError when
// stock cannot cover the request, and *VersionConflictError when a concurrent
// reservation won the race.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, quantity int) error {
	inv, err := l.store.GetByProduct(ctx, productID)
	if err != nil {
		return err
	}

	if inv.AvailableQuantity < quantity {
		return &InsufficientStockError{ProductID: productID}
	}

	return l.store.DecrementCAS(ctx, productID, quantity, inv.Version)
}
