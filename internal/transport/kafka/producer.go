// Package kafka adapts the Kafka client to the transport and consumer
// boundaries of the core.
package kafka

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/go-faster/errors"

	"github.com/vietct/orderflow/internal/domain/outbox"
)

var _ outbox.Transport = (*Producer)(nil)

// Producer publishes outbox payloads through a synchronous Kafka producer,
// which confirms every message and reports its partition assignment.
type Producer struct {
	sp sarama.SyncProducer
}

// NewProducer connects a SyncProducer to the given brokers. Acks from all
// in-sync replicas are required before a publish is confirmed.
func NewProducer(brokers []string) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create sync producer")
	}
	return &Producer{sp: sp}, nil
}

// Publish sends one message keyed for destination-side ordering by key.
// sarama's SyncProducer does not take a context, so cancellation is only
// observed between calls.
func (p *Producer) Publish(ctx context.Context, destination string, key string, payload []byte) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	partition, offset, err := p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: destination,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "send to %s", destination)
	}
	return partition, offset, nil
}

// Close shuts down the underlying producer.
func (p *Producer) Close() error {
	return p.sp.Close()
}
