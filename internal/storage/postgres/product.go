package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vietct/orderflow/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, category_id
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, category_id
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, category_id
		FROM products WHERE id = ANY($1)`

	categoryExistsSQL = `SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`

	ensureCategorySQL = `INSERT INTO categories (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET updated_at = now()
		RETURNING id`

	upsertProductSQL = `INSERT INTO products (id, name, price, category_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    category_id = EXCLUDED.category_id,
		    updated_at = now()`
)

var (
	_ product.Repository    = (*ProductRepository)(nil)
	_ product.CategoryStore = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses the given DB.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %s", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %s", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// CategoryExists reports whether a category row exists.
func (r *ProductRepository) CategoryExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.q(ctx).QueryRow(ctx, categoryExistsSQL, id).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "checking category %s", id)
	}
	return exists, nil
}

// EnsureCategory creates the named category if missing and returns its ID.
func (r *ProductRepository) EnsureCategory(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.q(ctx).QueryRow(ctx, ensureCategorySQL, uuid.New(), name).Scan(&id)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "ensuring category %q", name)
	}
	return id, nil
}

// Upsert creates or replaces a product, used by seeding.
func (r *ProductRepository) Upsert(ctx context.Context, id uuid.UUID, name string, price decimal.Decimal, categoryID uuid.UUID) error {
	if _, err := r.db.q(ctx).Exec(ctx, upsertProductSQL, id, name, price, categoryID); err != nil {
		return errors.Wrapf(err, "upserting product %s", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID)
	return p, err
}
