package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vietct/orderflow/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, price_at_order, position)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id, user_id, status, total_amount, created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, product_id, quantity, price_at_order
		FROM order_items WHERE order_id = $1 ORDER BY position`

	markOrderPaidSQL = `UPDATE orders
		SET status = 'PAID', updated_at = now()
		WHERE id = $1 AND status <> 'PAID'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses the given DB.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order and its items. Items keep their request order
// via the position column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	now := time.Now().UTC()
	o.Touch(now)

	q := r.db.q(ctx)
	if _, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Status, o.TotalAmount, now,
	); err != nil {
		return errors.Wrapf(err, "creating order %s", o.ID)
	}

	for i, item := range o.Items {
		if _, err := q.Exec(ctx, createOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.Quantity, item.PriceAtOrder, i,
		); err != nil {
			return errors.Wrapf(err, "creating order item %s", item.ID)
		}
	}
	return nil
}

// GetByID returns the order with its items, oldest item position first.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.db.q(ctx).QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{OrderID: id}
		}
		return nil, errors.Wrapf(err, "getting order %s", id)
	}

	rows, err := r.db.q(ctx).Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting items for order %s", id)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var item order.Item
		err := row.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.PriceAtOrder)
		return item, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning items for order %s", id)
	}

	return &o, nil
}

// MarkPaid transitions the order to PAID unless it already is.
func (r *OrderRepository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.q(ctx).Exec(ctx, markOrderPaidSQL, id)
	if err != nil {
		return false, errors.Wrapf(err, "marking order %s paid", id)
	}
	return tag.RowsAffected() > 0, nil
}
