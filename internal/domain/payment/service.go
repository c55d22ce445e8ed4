package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/order"
	"github.com/vietct/orderflow/internal/domain/outbox"
)

// TxRunner executes fn inside a single database transaction. Store calls made
// with the ctx passed to fn join that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ order.PaymentProcessor = (*Service)(nil)

// Service records successful payments. The payment row, the order's
// PENDING→PAID transition and the outbox event all commit in one atomic
// transaction: the event can never be durably recorded without the state
// change, and vice versa.
type Service struct {
	payments Store
	orders   order.Repository
	events   outbox.Store
	tx       TxRunner
	lg       *zap.Logger
}

// NewService creates a payment Service with the required dependencies.
func NewService(
	payments Store,
	orders order.Repository,
	events outbox.Store,
	tx TxRunner,
	lg *zap.Logger,
) *Service {
	return &Service{
		payments: payments,
		orders:   orders,
		events:   events,
		tx:       tx,
		lg:       lg,
	}
}

// ProcessPayment charges the persisted order. The mock gateway always
// succeeds, so this writes the SUCCESS payment, marks the order PAID and
// appends the PaymentCompletedEvent to the outbox atomically. On success the
// in-memory order reflects the committed PAID status.
func (s *Service) ProcessPayment(ctx context.Context, ord *order.Order, amount decimal.Decimal, method string) error {
	p := &Payment{
		ID:        uuid.New(),
		OrderID:   ord.ID,
		Amount:    amount,
		Method:    method,
		Status:    StatusSuccess,
		CreatedAt: time.Now().UTC(),
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, p); err != nil {
			return errors.Wrap(err, "create payment")
		}

		if _, err := s.orders.MarkPaid(ctx, ord.ID); err != nil {
			return errors.Wrap(err, "mark order paid")
		}

		ev := CompletedEvent{
			PaymentID:     p.ID,
			OrderID:       ord.ID,
			Amount:        amount,
			PaymentMethod: method,
			OccurredAt:    time.Now().UTC(),
		}

		rec := outbox.NewEvent(outbox.AggregatePayment, p.ID, EventTypePaymentCompleted, ev.Encode())
		if err := s.events.Append(ctx, rec); err != nil {
			return errors.Wrap(err, "append outbox event")
		}
		return nil
	})
	if err != nil {
		return err
	}

	ord.Status = order.StatusPaid

	s.lg.Info("payment recorded",
		zap.Stringer("payment_id", p.ID),
		zap.Stringer("order_id", ord.ID),
		zap.String("event_type", EventTypePaymentCompleted))

	return nil
}
