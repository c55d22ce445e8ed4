package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/lock"
)

// Transport publishes a payload to a destination, keyed for destination-side
// ordering, and reports the assigned partition and offset.
type Transport interface {
	Publish(ctx context.Context, destination string, key string, payload []byte) (partition int32, offset int64, err error)
}

// PublisherConfig tunes the background publisher loop.
type PublisherConfig struct {
	// Interval between drain ticks.
	Interval time.Duration
	// BatchSize caps how many pending events one tick fetches.
	BatchSize int
	// LockName names the distributed lock shared by all publisher instances.
	LockName string
	// LockTTL bounds how long a crashed holder can block other instances. It
	// must exceed one batch duration under normal load.
	LockTTL time.Duration
	// PaymentTopic receives events with the PAYMENT aggregate type.
	PaymentTopic string
	// DefaultTopic receives everything else.
	DefaultTopic string
}

// Publisher drains pending outbox events to the transport on a fixed
// interval. A distributed lock keeps at most one instance active per tick
// across a fleet, so the same event is never fanned out by two holders in the
// same window. Delivery is at-least-once: a crash between a confirmed publish
// and MarkProcessed causes a redelivery on restart.
type Publisher struct {
	store     Store
	transport Transport
	locks     lock.Manager
	cfg       PublisherConfig
	lg        *zap.Logger
	tracer    trace.Tracer

	published metric.Int64Counter
	failed    metric.Int64Counter
}

// NewPublisher creates a Publisher. Telemetry instruments are registered on
// the given providers.
func NewPublisher(
	store Store,
	transport Transport,
	locks lock.Manager,
	cfg PublisherConfig,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Publisher, error) {
	meter := mp.Meter("orderflow.outbox")

	published, err := meter.Int64Counter("outbox.events.published")
	if err != nil {
		return nil, errors.Wrap(err, "register published counter")
	}
	failed, err := meter.Int64Counter("outbox.events.failed")
	if err != nil {
		return nil, errors.Wrap(err, "register failed counter")
	}

	return &Publisher{
		store:     store,
		transport: transport,
		locks:     locks,
		cfg:       cfg,
		lg:        lg,
		tracer:    tp.Tracer("orderflow.outbox"),
		published: published,
		failed:    failed,
	}, nil
}

// Run drives the publisher until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick acquires the publisher lock and drains one batch. When another
// instance holds the lock the tick is a no-op.
func (p *Publisher) tick(ctx context.Context) {
	token, ok, err := p.locks.TryAcquire(ctx, p.cfg.LockName, p.cfg.LockTTL)
	if err != nil {
		p.lg.Error("acquire publisher lock", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := p.locks.Release(ctx, p.cfg.LockName, token); err != nil {
			p.lg.Warn("release publisher lock", zap.Error(err))
		}
	}()

	p.drain(ctx)
}

func (p *Publisher) drain(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "outbox.drain")
	defer span.End()

	events, err := p.store.FetchPending(ctx, p.cfg.BatchSize)
	if err != nil {
		p.lg.Error("fetch pending outbox events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	p.lg.Info("draining outbox events", zap.Int("count", len(events)))

	for _, ev := range events {
		// Failures are independent per event: one bad publish is logged and
		// left pending for the next tick without blocking the rest of the
		// batch.
		if err := p.publishOne(ctx, ev); err != nil {
			p.failed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("aggregate_type", ev.AggregateType)))
			p.lg.Error("publish outbox event",
				zap.Stringer("event_id", ev.ID),
				zap.String("aggregate_type", ev.AggregateType),
				zap.String("event_type", ev.EventType),
				zap.Error(err))
		}
	}
}

func (p *Publisher) publishOne(ctx context.Context, ev Event) error {
	topic := p.resolveTopic(ev)

	partition, offset, err := p.transport.Publish(ctx, topic, ev.AggregateID.String(), ev.Payload)
	if err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}

	if err := p.store.MarkProcessed(ctx, ev.ID); err != nil {
		return errors.Wrap(err, "mark processed")
	}

	p.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("aggregate_type", ev.AggregateType)))
	p.lg.Info("published outbox event",
		zap.Stringer("event_id", ev.ID),
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

func (p *Publisher) resolveTopic(ev Event) string {
	if ev.AggregateType == AggregatePayment {
		return p.cfg.PaymentTopic
	}
	return p.cfg.DefaultTopic
}
