package kafka

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/payment"
)

// Handler consumes decoded payment-completed events.
type Handler interface {
	HandlePaymentCompleted(ctx context.Context, ev payment.CompletedEvent) error
}

// Consumer reads the payment events topic through a consumer group and feeds
// each message to the handler. Offsets are committed after handling either
// way: the idempotency ledger makes redelivery safe, and a poison message
// must not wedge the partition.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler Handler
	lg      *zap.Logger
	tracer  trace.Tracer
}

// NewConsumer joins the given consumer group on the brokers.
func NewConsumer(
	brokers []string,
	groupID string,
	topic string,
	handler Handler,
	lg *zap.Logger,
	tp trace.TracerProvider,
) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create consumer group")
	}

	return &Consumer{
		group:   group,
		topic:   topic,
		handler: handler,
		lg:      lg,
		tracer:  tp.Tracer("orderflow.kafka"),
	}, nil
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it loops.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.group.Close(); err != nil {
			c.lg.Warn("close consumer group", zap.Error(err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, &groupHandler{c: c}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.lg.Error("consume", zap.Error(err))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

type groupHandler struct {
	c *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.handleMessage(sess.Context(), msg)
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (h *groupHandler) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	ctx, span := h.c.tracer.Start(ctx, "payment.consume")
	defer span.End()

	ev, err := payment.DecodeCompletedEvent(msg.Value)
	if err != nil {
		h.c.lg.Error("decode payment event",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}

	if err := h.c.handler.HandlePaymentCompleted(ctx, ev); err != nil {
		h.c.lg.Error("handle payment completed",
			zap.Stringer("payment_id", ev.PaymentID),
			zap.Stringer("order_id", ev.OrderID),
			zap.Error(err))
	}
}
