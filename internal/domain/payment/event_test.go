package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletedEvent_RoundTrip(t *testing.T) {
	ev := CompletedEvent{
		PaymentID:     uuid.New(),
		OrderID:       uuid.New(),
		Amount:        decimal.RequireFromString("1234.56"),
		PaymentMethod: "PAYPAL",
		OccurredAt:    time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC),
	}

	got, err := DecodeCompletedEvent(ev.Encode())
	require.NoError(t, err)

	assert.Equal(t, ev.PaymentID, got.PaymentID)
	assert.Equal(t, ev.OrderID, got.OrderID)
	assert.True(t, got.Amount.Equal(ev.Amount), "amount %s", got.Amount)
	assert.Equal(t, ev.PaymentMethod, got.PaymentMethod)
	assert.True(t, got.OccurredAt.Equal(ev.OccurredAt))
}

func TestDecodeCompletedEvent_UnknownFieldsSkipped(t *testing.T) {
	paymentID := uuid.New()
	orderID := uuid.New()
	payload := `{"paymentId":"` + paymentID.String() + `","orderId":"` + orderID.String() +
		`","amount":"9.99","paymentMethod":"CREDIT_CARD","traceId":"abc","retries":3}`

	got, err := DecodeCompletedEvent([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, paymentID, got.PaymentID)
	assert.Equal(t, orderID, got.OrderID)
}

func TestDecodeCompletedEvent_MissingIdentifiers(t *testing.T) {
	_, err := DecodeCompletedEvent([]byte(`{"amount":"9.99","paymentMethod":"CREDIT_CARD"}`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "missing identifiers")
}

func TestDecodeCompletedEvent_MalformedPayload(t *testing.T) {
	_, err := DecodeCompletedEvent([]byte(`{"paymentId":"not-a-uuid"`))
	require.Error(t, err)
}
