package postgres

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/vietct/orderflow/internal/domain/payment"
)

const createPaymentSQL = `INSERT INTO payments (id, order_id, amount, payment_method, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

var _ payment.Store = (*PaymentStore)(nil)

// PaymentStore implements payment.Store backed by PostgreSQL.
type PaymentStore struct {
	db *DB
}

// NewPaymentStore returns a PaymentStore that uses the given DB.
func NewPaymentStore(db *DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// Create persists a new payment row.
func (s *PaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	_, err := s.db.q(ctx).Exec(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "creating payment %s", p.ID)
	}
	return nil
}
