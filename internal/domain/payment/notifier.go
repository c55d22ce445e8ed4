package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ Notifier = (*LoggingNotifier)(nil)

// LoggingNotifier is the notification sink used in this deployment: it only
// logs. Swapping in a real channel (email, push) is a wiring change.
type LoggingNotifier struct {
	lg *zap.Logger
}

// NewLoggingNotifier creates a LoggingNotifier.
func NewLoggingNotifier(lg *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{lg: lg}
}

// NotifyOrderPaid logs the paid notification.
func (n *LoggingNotifier) NotifyOrderPaid(_ context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) {
	n.lg.Info("order paid notification",
		zap.Stringer("order_id", orderID),
		zap.Stringer("user_id", userID),
		zap.String("amount", amount.String()))
}
