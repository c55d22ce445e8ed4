package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID         uuid.UUID
	Name       string
	Price      decimal.Decimal
	CategoryID uuid.UUID
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
}

// CategoryStore exposes the category existence check used at the catalog
// boundary.
type CategoryStore interface {
	CategoryExists(ctx context.Context, id uuid.UUID) (bool, error)
}
