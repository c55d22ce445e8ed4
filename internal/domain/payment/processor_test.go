package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/order"
)

type memProcessedStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]ProcessedEvent

	insertOverride func() (bool, error)
}

func newMemProcessedStore() *memProcessedStore {
	return &memProcessedStore{records: make(map[uuid.UUID]ProcessedEvent)}
}

func (m *memProcessedStore) Exists(_ context.Context, paymentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[paymentID]
	return ok, nil
}

func (m *memProcessedStore) Insert(_ context.Context, rec ProcessedEvent) (bool, error) {
	if m.insertOverride != nil {
		return m.insertOverride()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.PaymentID]; ok {
		return false, nil
	}
	m.records[rec.PaymentID] = rec
	return true, nil
}

func (m *memProcessedStore) ListIDs(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memProcessedStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (n *recordingNotifier) NotifyOrderPaid(_ context.Context, orderID, _ uuid.UUID, _ decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, orderID)
}

func (n *recordingNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestProcessor(t *testing.T, processed ProcessedEventStore, orders order.Repository, notifier Notifier) *Processor {
	t.Helper()
	p, err := NewProcessor(processed, orders, notifier, zap.NewNop(), noop.NewMeterProvider())
	require.NoError(t, err)
	return p
}

func newCompletedEvent(orderID uuid.UUID) CompletedEvent {
	return CompletedEvent{
		PaymentID:     uuid.New(),
		OrderID:       orderID,
		Amount:        decimal.RequireFromString("25.00"),
		PaymentMethod: "CREDIT_CARD",
		OccurredAt:    time.Now().UTC(),
	}
}

func TestHandlePaymentCompleted_AppliesEffects(t *testing.T) {
	ord := newPendingOrder()
	processed := newMemProcessedStore()
	orders := newMockOrderRepo(ord)
	notifier := &recordingNotifier{}
	proc := newTestProcessor(t, processed, orders, notifier)

	ev := newCompletedEvent(ord.ID)
	require.NoError(t, proc.HandlePaymentCompleted(context.Background(), ev))

	assert.Equal(t, order.StatusPaid, ord.Status)
	assert.Equal(t, 1, processed.count())
	assert.Equal(t, 1, notifier.callCount())
}

func TestHandlePaymentCompleted_DuplicateDeliveryIsNoop(t *testing.T) {
	ord := newPendingOrder()
	processed := newMemProcessedStore()
	orders := newMockOrderRepo(ord)
	notifier := &recordingNotifier{}
	proc := newTestProcessor(t, processed, orders, notifier)

	ev := newCompletedEvent(ord.ID)
	require.NoError(t, proc.HandlePaymentCompleted(context.Background(), ev))
	require.NoError(t, proc.HandlePaymentCompleted(context.Background(), ev))
	require.NoError(t, proc.HandlePaymentCompleted(context.Background(), ev))

	assert.Equal(t, order.StatusPaid, ord.Status)
	assert.Equal(t, 1, processed.count())
	assert.Equal(t, 1, notifier.callCount(), "duplicate deliveries must not re-notify")
}

func TestHandlePaymentCompleted_AlreadyPaidOrder(t *testing.T) {
	ord := newPendingOrder()
	ord.Status = order.StatusPaid
	processed := newMemProcessedStore()
	orders := newMockOrderRepo(ord)
	notifier := &recordingNotifier{}
	proc := newTestProcessor(t, processed, orders, notifier)

	// Simulates a crash after the PAID transition but before the marker write:
	// the redelivered event finds the order paid and no marker.
	ev := newCompletedEvent(ord.ID)
	require.NoError(t, proc.HandlePaymentCompleted(context.Background(), ev))

	assert.Equal(t, order.StatusPaid, ord.Status)
	assert.Equal(t, 1, processed.count())
	assert.Equal(t, 1, notifier.callCount())
}

func TestHandlePaymentCompleted_MissingOrder(t *testing.T) {
	processed := newMemProcessedStore()
	orders := newMockOrderRepo()
	notifier := &recordingNotifier{}
	proc := newTestProcessor(t, processed, orders, notifier)

	ev := newCompletedEvent(uuid.New())
	err := proc.HandlePaymentCompleted(context.Background(), ev)

	require.Error(t, err)
	assert.Zero(t, processed.count(), "no marker for an unapplied event")
	assert.Zero(t, notifier.callCount())
}

func TestHandlePaymentCompleted_RacingConsumerOwnsNotification(t *testing.T) {
	ord := newPendingOrder()
	processed := newMemProcessedStore()
	processed.insertOverride = func() (bool, error) { return false, nil }
	orders := newMockOrderRepo(ord)
	notifier := &recordingNotifier{}
	proc := newTestProcessor(t, processed, orders, notifier)

	ev := newCompletedEvent(ord.ID)
	require.NoError(t, proc.HandlePaymentCompleted(context.Background(), ev))

	assert.Equal(t, order.StatusPaid, ord.Status)
	assert.Zero(t, notifier.callCount(), "the winning consumer notifies")
}

func TestWarm_DetectsMarkersFromEarlierLifetimes(t *testing.T) {
	ord := newPendingOrder()
	processed := newMemProcessedStore()
	orders := newMockOrderRepo(ord)

	first := newTestProcessor(t, processed, orders, &recordingNotifier{})
	ev := newCompletedEvent(ord.ID)
	require.NoError(t, first.HandlePaymentCompleted(context.Background(), ev))

	// A fresh processor with a cold filter would not see the marker without
	// warming.
	notifier := &recordingNotifier{}
	second := newTestProcessor(t, processed, orders, notifier)
	require.NoError(t, second.Warm(context.Background()))

	require.NoError(t, second.HandlePaymentCompleted(context.Background(), ev))
	assert.Equal(t, 1, processed.count())
	assert.Zero(t, notifier.callCount())
}
