package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vietct/orderflow/internal/domain/inventory"
)

const (
	getInventorySQL = `SELECT product_id, available_quantity, version, created_at, updated_at
		FROM inventory WHERE product_id = $1`

	// The version equality check is the compare half of the CAS; the quantity
	// guard keeps the non-negative invariant even if a racing transaction
	// shrank the stock after our read.
	decrementInventorySQL = `UPDATE inventory
		SET available_quantity = available_quantity - $2,
		    version = version + 1,
		    updated_at = now()
		WHERE product_id = $1 AND version = $3 AND available_quantity >= $2`

	upsertInventorySQL = `INSERT INTO inventory (product_id, available_quantity)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE
		SET available_quantity = EXCLUDED.available_quantity,
		    version = inventory.version + 1,
		    updated_at = now()`
)

var _ inventory.Store = (*InventoryStore)(nil)

// InventoryStore implements inventory.Store backed by PostgreSQL.
type InventoryStore struct {
	db *DB
}

// NewInventoryStore returns an InventoryStore that uses the given DB.
func NewInventoryStore(db *DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// GetByProduct returns the inventory row for a product.
func (s *InventoryStore) GetByProduct(ctx context.Context, productID uuid.UUID) (*inventory.Inventory, error) {
	var inv inventory.Inventory
	err := s.db.q(ctx).QueryRow(ctx, getInventorySQL, productID).Scan(
		&inv.ProductID, &inv.AvailableQuantity, &inv.Version,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &inventory.NotFoundError{ProductID: productID}
		}
		return nil, errors.Wrapf(err, "getting inventory for product %s", productID)
	}
	return &inv, nil
}

// DecrementCAS applies the conditional decrement. Zero affected rows means
// the version moved (or stock shrank) under us, reported as a version
// conflict.
func (s *InventoryStore) DecrementCAS(ctx context.Context, productID uuid.UUID, quantity int, version int64) error {
	tag, err := s.db.q(ctx).Exec(ctx, decrementInventorySQL, productID, quantity, version)
	if err != nil {
		return errors.Wrapf(err, "decrementing inventory for product %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return &inventory.VersionConflictError{ProductID: productID}
	}
	return nil
}

// Upsert sets the available quantity for a product, used by seeding.
func (s *InventoryStore) Upsert(ctx context.Context, productID uuid.UUID, quantity int) error {
	if _, err := s.db.q(ctx).Exec(ctx, upsertInventorySQL, productID, quantity); err != nil {
		return errors.Wrapf(err, "upserting inventory for product %s", productID)
	}
	return nil
}
