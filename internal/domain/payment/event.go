package payment

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypePaymentCompleted is the outbox event type emitted on a successful
// payment.
const EventTypePaymentCompleted = "PAYMENT_COMPLETED"

// CompletedEvent announces a successful payment. It is serialized into the
// outbox payload and decoded again on the consumer side.
type CompletedEvent struct {
	PaymentID     uuid.UUID
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	PaymentMethod string
	OccurredAt    time.Time
}

// Encode serializes the event payload. The amount is written as a string to
// keep it an exact decimal on the wire.
func (ev CompletedEvent) Encode() []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("paymentId", func(e *jx.Encoder) { e.Str(ev.PaymentID.String()) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(ev.OrderID.String()) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(ev.Amount.String()) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(ev.PaymentMethod) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

// DecodeCompletedEvent parses an event payload produced by Encode.
func DecodeCompletedEvent(data []byte) (CompletedEvent, error) {
	var ev CompletedEvent

	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "paymentId":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.PaymentID, err = uuid.Parse(s)
			return err
		case "orderId":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.OrderID, err = uuid.Parse(s)
			return err
		case "amount":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.Amount, err = decimal.NewFromString(s)
			return err
		case "paymentMethod":
			var err error
			ev.PaymentMethod, err = d.Str()
			return err
		case "occurredAt":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.OccurredAt, err = time.Parse(time.RFC3339Nano, s)
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return CompletedEvent{}, errors.Wrap(err, "decode payment completed event")
	}

	if ev.PaymentID == uuid.Nil || ev.OrderID == uuid.Nil {
		return CompletedEvent{}, errors.New("payment completed event missing identifiers")
	}
	return ev, nil
}
