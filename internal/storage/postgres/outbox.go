package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vietct/orderflow/internal/domain/outbox"
)

const (
	appendOutboxSQL = `INSERT INTO outbox_event (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	fetchPendingOutboxSQL = `SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, processed_at
		FROM outbox_event
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	markProcessedOutboxSQL = `UPDATE outbox_event
		SET processed_at = now()
		WHERE id = $1 AND processed_at IS NULL`
)

var _ outbox.Store = (*OutboxStore)(nil)

// OutboxStore implements outbox.Store backed by PostgreSQL.
type OutboxStore struct {
	db *DB
}

// NewOutboxStore returns an OutboxStore that uses the given DB.
func NewOutboxStore(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Append inserts a pending event; inside a transaction it commits with the
// caller's state change.
func (s *OutboxStore) Append(ctx context.Context, ev outbox.Event) error {
	_, err := s.db.q(ctx).Exec(ctx, appendOutboxSQL,
		ev.ID, ev.AggregateType, ev.AggregateID, ev.EventType, ev.Payload, ev.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "appending outbox event %s", ev.ID)
	}
	return nil
}

// FetchPending returns up to limit unprocessed events, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := s.db.q(ctx).Query(ctx, fetchPendingOutboxSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetching pending outbox events")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
		var ev outbox.Event
		err := row.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.EventType,
			&ev.Payload, &ev.CreatedAt, &ev.ProcessedAt)
		return ev, err
	})
}

// MarkProcessed stamps the event as delivered. Already processed events are
// left untouched.
func (s *OutboxStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.q(ctx).Exec(ctx, markProcessedOutboxSQL, id); err != nil {
		return errors.Wrapf(err, "marking outbox event %s processed", id)
	}
	return nil
}
