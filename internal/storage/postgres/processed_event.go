package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vietct/orderflow/internal/domain/payment"
)

const (
	processedEventExistsSQL = `SELECT EXISTS(SELECT 1 FROM processed_payment_event WHERE payment_id = $1)`

	insertProcessedEventSQL = `INSERT INTO processed_payment_event (payment_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (payment_id) DO NOTHING`

	listProcessedEventIDsSQL = `SELECT payment_id FROM processed_payment_event`
)

var _ payment.ProcessedEventStore = (*ProcessedEventStore)(nil)

// ProcessedEventStore implements the idempotency ledger on PostgreSQL.
type ProcessedEventStore struct {
	db *DB
}

// NewProcessedEventStore returns a ProcessedEventStore that uses the given DB.
func NewProcessedEventStore(db *DB) *ProcessedEventStore {
	return &ProcessedEventStore{db: db}
}

// Exists reports whether the payment ID is already recorded.
func (s *ProcessedEventStore) Exists(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var exists bool
	if err := s.db.q(ctx).QueryRow(ctx, processedEventExistsSQL, paymentID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "checking processed payment event %s", paymentID)
	}
	return exists, nil
}

// Insert records the marker; a concurrent duplicate loses the conflict and
// gets inserted=false.
func (s *ProcessedEventStore) Insert(ctx context.Context, rec payment.ProcessedEvent) (bool, error) {
	tag, err := s.db.q(ctx).Exec(ctx, insertProcessedEventSQL,
		rec.PaymentID, rec.EventType, rec.ProcessedAt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "inserting processed payment event %s", rec.PaymentID)
	}
	return tag.RowsAffected() > 0, nil
}

// ListIDs returns all recorded payment IDs.
func (s *ProcessedEventStore) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.q(ctx).Query(ctx, listProcessedEventIDsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing processed payment events")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
}
