package order

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/inventory"
	"github.com/vietct/orderflow/internal/domain/product"
)

type mockProductRepo struct {
	products map[uuid.UUID]product.Product
}

func newMockProductRepo(products ...product.Product) *mockProductRepo {
	m := &mockProductRepo{products: make(map[uuid.UUID]product.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// mockInventoryStore honors the compare-and-swap contract of inventory.Store.
type mockInventoryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*inventory.Inventory
}

func newMockInventoryStore(rows ...*inventory.Inventory) *mockInventoryStore {
	m := &mockInventoryStore{rows: make(map[uuid.UUID]*inventory.Inventory)}
	for _, r := range rows {
		m.rows[r.ProductID] = r
	}
	return m
}

func (m *mockInventoryStore) GetByProduct(_ context.Context, productID uuid.UUID) (*inventory.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[productID]
	if !ok {
		return nil, &inventory.NotFoundError{ProductID: productID}
	}
	cp := *row
	return &cp, nil
}

func (m *mockInventoryStore) DecrementCAS(_ context.Context, productID uuid.UUID, quantity int, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[productID]
	if !ok || row.Version != version || row.AvailableQuantity < quantity {
		return &inventory.VersionConflictError{ProductID: productID}
	}
	row.AvailableQuantity -= quantity
	row.Version++
	return nil
}

func (m *mockInventoryStore) quantity(productID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[productID].AvailableQuantity
}

type mockOrderRepo struct {
	mu      sync.Mutex
	created []*Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, o)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, &NotFoundError{OrderID: id}
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.created {
		if o.ID == id && o.Status != StatusPaid {
			o.Status = StatusPaid
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

// mockPaymentProcessor mimics the payment service: it marks the order paid.
type mockPaymentProcessor struct {
	mu      sync.Mutex
	calls   int
	amounts []decimal.Decimal
	methods []string
	err     error
}

func (m *mockPaymentProcessor) ProcessPayment(_ context.Context, o *Order, amount decimal.Decimal, method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls++
	m.amounts = append(m.amounts, amount)
	m.methods = append(m.methods, method)
	o.Status = StatusPaid
	return nil
}

func (m *mockPaymentProcessor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeTxRunner runs fn directly; a returned error means the real runner would
// have rolled back.
type fakeTxRunner struct{}

func (fakeTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc      *Service
	products *mockProductRepo
	stock    *mockInventoryStore
	orders   *mockOrderRepo
	payments *mockPaymentProcessor
}

func newFixture(products *mockProductRepo, stock *mockInventoryStore) fixture {
	orders := &mockOrderRepo{}
	payments := &mockPaymentProcessor{}
	svc := NewService(
		products,
		inventory.NewLedger(stock),
		orders,
		payments,
		fakeTxRunner{},
		zap.NewNop(),
	)
	return fixture{svc: svc, products: products, stock: stock, orders: orders, payments: payments}
}

func newTestProduct(price string) product.Product {
	return product.Product{
		ID:         uuid.New(),
		Name:       "widget",
		Price:      decimal.RequireFromString(price),
		CategoryID: uuid.New(),
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	f := newFixture(newMockProductRepo(), newMockInventoryStore())

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		PaymentMethod: "CREDIT_CARD",
	})

	require.ErrorIs(t, err, ErrEmptyItems)
	assert.Zero(t, f.orders.count())
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	p := newTestProduct("10.00")
	f := newFixture(
		newMockProductRepo(p),
		newMockInventoryStore(&inventory.Inventory{ProductID: p.ID, AvailableQuantity: 5}),
	)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 0}},
		PaymentMethod: "CREDIT_CARD",
	})

	var qtyErr *InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, p.ID, qtyErr.ProductID)
	assert.Equal(t, 5, f.stock.quantity(p.ID))
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	f := newFixture(newMockProductRepo(), newMockInventoryStore())
	missing := uuid.New()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: missing, Quantity: 1}},
		PaymentMethod: "CREDIT_CARD",
	})

	var nfErr *ProductNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, missing, nfErr.ProductID)
	assert.Zero(t, f.orders.count())
	assert.Zero(t, f.payments.callCount())
}

func TestPlaceOrder_InventoryRowMissing(t *testing.T) {
	p := newTestProduct("10.00")
	f := newFixture(newMockProductRepo(p), newMockInventoryStore())

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "CREDIT_CARD",
	})

	var nfErr *inventory.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Zero(t, f.orders.count())
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	p := newTestProduct("10.00")
	f := newFixture(
		newMockProductRepo(p),
		newMockInventoryStore(&inventory.Inventory{ProductID: p.ID, AvailableQuantity: 5}),
	)

	first, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 3}},
		PaymentMethod: "CREDIT_CARD",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, first.Status)
	assert.Equal(t, 2, f.stock.quantity(p.ID))

	_, err = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 3}},
		PaymentMethod: "CREDIT_CARD",
	})

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, f.stock.quantity(p.ID))
	assert.Equal(t, 1, f.orders.count())
	assert.Equal(t, 1, f.payments.callCount())
}

func TestPlaceOrder_VersionConflictReadsAsStockConflict(t *testing.T) {
	p := newTestProduct("10.00")
	stock := newMockInventoryStore(&inventory.Inventory{ProductID: p.ID, AvailableQuantity: 5})
	f := newFixture(newMockProductRepo(p), stock)

	// Another writer advances the version before the conditional decrement.
	stock.rows[p.ID].Version = 1
	conflicted := &racingInventoryStore{mockInventoryStore: stock}
	f.svc.ledger = inventory.NewLedger(conflicted)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "CREDIT_CARD",
	})

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Zero(t, f.payments.callCount())
}

// racingInventoryStore bumps the stored version after every read so the
// subsequent conditional write always loses.
type racingInventoryStore struct {
	*mockInventoryStore
}

func (s *racingInventoryStore) GetByProduct(ctx context.Context, productID uuid.UUID) (*inventory.Inventory, error) {
	row, err := s.mockInventoryStore.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.rows[productID].Version++
	s.mu.Unlock()
	return row, nil
}

func TestPlaceOrder_TotalSnapshotsPrices(t *testing.T) {
	p1 := newTestProduct("19.99")
	p2 := newTestProduct("5.50")
	f := newFixture(
		newMockProductRepo(p1, p2),
		newMockInventoryStore(
			&inventory.Inventory{ProductID: p1.ID, AvailableQuantity: 10},
			&inventory.Inventory{ProductID: p2.ID, AvailableQuantity: 10},
		),
	)

	o, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: uuid.New(),
		Items: []ItemRequest{
			{ProductID: p1.ID, Quantity: 2},
			{ProductID: p2.ID, Quantity: 3},
		},
		PaymentMethod: "CREDIT_CARD",
	})
	require.NoError(t, err)

	// 2 * 19.99 + 3 * 5.50 = 56.48
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("56.48")),
		"total %s", o.TotalAmount)
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].PriceAtOrder.Equal(p1.Price))
	assert.True(t, o.Items[1].PriceAtOrder.Equal(p2.Price))

	// Catalog price changes never reach placed orders.
	f.products.products[p1.ID] = product.Product{
		ID: p1.ID, Name: p1.Name, Price: decimal.RequireFromString("99.99"), CategoryID: p1.CategoryID,
	}
	got, err := f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("56.48")))
}

func TestPlaceOrder_PaymentRunsAfterReservation(t *testing.T) {
	p := newTestProduct("10.00")
	f := newFixture(
		newMockProductRepo(p),
		newMockInventoryStore(&inventory.Inventory{ProductID: p.ID, AvailableQuantity: 1}),
	)

	o, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "PAYPAL",
	})
	require.NoError(t, err)

	require.Equal(t, 1, f.payments.callCount())
	assert.True(t, f.payments.amounts[0].Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "PAYPAL", f.payments.methods[0])
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, 0, f.stock.quantity(p.ID))
}

func TestPlaceOrder_PaymentFailurePropagates(t *testing.T) {
	p := newTestProduct("10.00")
	f := newFixture(
		newMockProductRepo(p),
		newMockInventoryStore(&inventory.Inventory{ProductID: p.ID, AvailableQuantity: 1}),
	)
	f.payments.err = errors.New("gateway timeout")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        uuid.New(),
		Items:         []ItemRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "CREDIT_CARD",
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "gateway timeout")
}

func TestPlaceOrder_ConcurrentPlacementsNeverOversell(t *testing.T) {
	const (
		stock   = 5
		callers = 8
	)

	p := newTestProduct("10.00")
	f := newFixture(
		newMockProductRepo(p),
		newMockInventoryStore(&inventory.Inventory{ProductID: p.ID, AvailableQuantity: stock}),
	)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				UserID:        uuid.New(),
				Items:         []ItemRequest{{ProductID: p.ID, Quantity: 1}},
				PaymentMethod: "CREDIT_CARD",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}

			var stockErr *inventory.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
		}()
	}
	wg.Wait()

	// Lost version races surface as stock conflicts without a retry, so the
	// success count may fall short of the stock; it can never exceed it.
	assert.LessOrEqual(t, succeeded, stock)
	assert.Equal(t, stock-succeeded, f.stock.quantity(p.ID))
	assert.Equal(t, succeeded, f.payments.callCount())
	assert.Equal(t, succeeded, f.orders.count())
}
