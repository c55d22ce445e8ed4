package payment

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/order"
)

// filter sizing: comfortably above any realistic ledger size so the false
// positive rate stays near the configured 0.1%.
const (
	filterCapacity = 1_000_000
	filterFPR      = 0.001
)

// Processor applies PaymentCompletedEvent effects exactly once. The
// ProcessedEvent ledger keyed by payment ID is the idempotency gate; a bloom
// filter warmed from the ledger lets definitely-new payment IDs skip the
// existence query on the hot path.
type Processor struct {
	processed ProcessedEventStore
	orders    order.Repository
	notifier  Notifier
	lg        *zap.Logger

	mu     sync.Mutex
	filter *bloom.BloomFilter

	duplicates metric.Int64Counter
}

// NewProcessor creates a Processor. Call Warm before serving traffic so the
// filter covers markers written by earlier process lifetimes.
func NewProcessor(
	processed ProcessedEventStore,
	orders order.Repository,
	notifier Notifier,
	lg *zap.Logger,
	mp metric.MeterProvider,
) (*Processor, error) {
	duplicates, err := mp.Meter("orderflow.payment").Int64Counter("payment.events.duplicates")
	if err != nil {
		return nil, errors.Wrap(err, "register duplicates counter")
	}

	return &Processor{
		processed:  processed,
		orders:     orders,
		notifier:   notifier,
		lg:         lg,
		filter:     bloom.NewWithEstimates(filterCapacity, filterFPR),
		duplicates: duplicates,
	}, nil
}

// Warm loads all recorded payment IDs into the filter. Without this step a
// filter miss would not prove the event is new.
func (p *Processor) Warm(ctx context.Context) error {
	ids, err := p.processed.ListIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list processed payment ids")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.filter.Add(id[:])
	}

	p.lg.Info("idempotency filter warmed", zap.Int("entries", len(ids)))
	return nil
}

// HandlePaymentCompleted applies the effects of a payment-completed event:
// order PENDING→PAID and the paid notification. Redelivering the same event
// is a no-op without error. The order transition is compare-then-set, so a
// crash after the transition but before the marker insert re-applies safely.
func (p *Processor) HandlePaymentCompleted(ctx context.Context, ev CompletedEvent) error {
	if p.maybeProcessed(ev.PaymentID) {
		exists, err := p.processed.Exists(ctx, ev.PaymentID)
		if err != nil {
			return errors.Wrap(err, "check idempotency ledger")
		}
		if exists {
			p.duplicates.Add(ctx, 1)
			p.lg.Info("payment event already processed, skipping",
				zap.Stringer("payment_id", ev.PaymentID))
			return nil
		}
	}

	ord, err := p.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		// A payment event for a missing order is a data integrity fault, not
		// a skippable duplicate.
		return errors.Wrapf(err, "load order %s for payment %s", ev.OrderID, ev.PaymentID)
	}

	changed, err := p.orders.MarkPaid(ctx, ord.ID)
	if err != nil {
		return errors.Wrap(err, "mark order paid")
	}
	if changed {
		p.lg.Info("order marked paid",
			zap.Stringer("order_id", ord.ID),
			zap.Stringer("payment_id", ev.PaymentID))
	} else {
		p.lg.Info("order already paid",
			zap.Stringer("order_id", ord.ID),
			zap.Stringer("payment_id", ev.PaymentID))
	}

	inserted, err := p.processed.Insert(ctx, ProcessedEvent{
		PaymentID:   ev.PaymentID,
		EventType:   EventTypePaymentCompleted,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "record processed payment event")
	}
	p.remember(ev.PaymentID)

	if !inserted {
		// A racing consumer inserted the marker first; it owns the side
		// effect.
		p.duplicates.Add(ctx, 1)
		return nil
	}

	p.notifier.NotifyOrderPaid(ctx, ord.ID, ord.UserID, ev.Amount)
	return nil
}

// maybeProcessed reports whether the payment ID might already be in the
// ledger. False means definitely not processed.
func (p *Processor) maybeProcessed(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter.Test(id[:])
}

func (p *Processor) remember(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter.Add(id[:])
}
