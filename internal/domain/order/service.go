package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/inventory"
	"github.com/vietct/orderflow/internal/domain/product"
)

// TxRunner executes fn inside a single database transaction. Store calls made
// with the ctx passed to fn join that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentProcessor charges a persisted order. Implemented by the payment
// service; invoked synchronously after the reservation transaction commits.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, o *Order, amount decimal.Decimal, method string) error
}

// ItemRequest is one requested order line.
type ItemRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID        uuid.UUID
	Items         []ItemRequest
	PaymentMethod string
}

// Service coordinates order placement: validation, stock reservation, order
// persistence and the synchronous payment step.
type Service struct {
	products product.Repository
	ledger   *inventory.Ledger
	orders   Repository
	payments PaymentProcessor
	tx       TxRunner
	lg       *zap.Logger
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	ledger *inventory.Ledger,
	orders Repository,
	payments PaymentProcessor,
	tx TxRunner,
	lg *zap.Logger,
) *Service {
	return &Service{
		products: products,
		ledger:   ledger,
		orders:   orders,
		payments: payments,
		tx:       tx,
		lg:       lg,
	}
}

// PlaceOrder validates the request, fetches products in a single batch,
// reserves stock per item, and persists the order with its items and the
// inventory decrements as one atomic transaction at read-committed isolation.
// Correctness under concurrency rests on the per-row version check, not on
// transaction snapshot isolation. On successful commit the payment step runs
// synchronously.
//
// A reservation that loses the version race is not retried here: it surfaces
// as *inventory.InsufficientStockError and the retry decision is left to the
// caller.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]uuid.UUID, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[uuid.UUID]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Verify every requested product was found before touching any stock.
	for _, item := range req.Items {
		if _, ok := productMap[item.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
	}

	o := &Order{
		ID:     uuid.New(),
		UserID: req.UserID,
		Status: StatusPending,
		Items:  make([]Item, len(req.Items)),
	}

	total := decimal.Zero
	for i, item := range req.Items {
		price := productMap[item.ProductID].Price
		o.Items[i] = Item{
			ID:           uuid.New(),
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PriceAtOrder: price,
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	o.TotalAmount = total

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, item := range req.Items {
			if err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	})
	if err != nil {
		// A lost version race reads the same as a plain stock shortfall for
		// the caller; both mean "someone else got the units first".
		var conflict *inventory.VersionConflictError
		if errors.As(err, &conflict) {
			s.lg.Info("reservation lost version race",
				zap.Stringer("product_id", conflict.ProductID))
			return nil, &inventory.InsufficientStockError{ProductID: conflict.ProductID}
		}
		return nil, err
	}

	if err := s.payments.ProcessPayment(ctx, o, total, req.PaymentMethod); err != nil {
		return nil, errors.Wrap(err, "process payment")
	}

	return o, nil
}

// GetOrder returns the order with the given ID, including its items.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}
