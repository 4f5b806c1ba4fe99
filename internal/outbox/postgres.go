package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists outbox rows in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed outbox store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// AppendTx records the event inside the caller's transaction. The row exists
// if and only if the surrounding business mutation commits.
func (s *PostgresStore) AppendTx(ctx context.Context, tx pgx.Tx, evt Event) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox_events
            (id, aggregate_id, aggregate_type, event_type, payload, retry_count, created_at)
        VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		evt.ID, evt.AggregateID, evt.AggregateType, evt.EventType, evt.Payload, evt.CreatedAt)
	return err
}

// FetchDue claims a batch of deliverable rows. FOR UPDATE SKIP LOCKED keeps
// concurrent dispatchers from claiming the same rows, and pushing out
// next_retry_at holds the claim until claimUntil.
func (s *PostgresStore) FetchDue(ctx context.Context, batch int, claimUntil time.Time) ([]Event, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT id, aggregate_id, aggregate_type, event_type, payload,
            retry_count, COALESCE(last_error, ''), published_at, next_retry_at, created_at
        FROM outbox_events
        WHERE published_at IS NULL
          AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`, batch)
	if err != nil {
		return nil, err
	}

	var items []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.AggregateID, &evt.AggregateType, &evt.EventType,
			&evt.Payload, &evt.RetryCount, &evt.LastError,
			&evt.PublishedAt, &evt.NextRetryAt, &evt.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, evt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, evt := range items {
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET next_retry_at = $2 WHERE id = $1`,
			evt.ID, claimUntil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkPublished stamps the delivery time on a sent row.
func (s *PostgresStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE outbox_events
        SET published_at = $2, last_error = NULL
        WHERE id = $1`, id, at)
	return err
}

// MarkFailed records the publish error and schedules the next attempt.
func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRetry time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE outbox_events
        SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3
        WHERE id = $1`, id, lastError, nextRetry)
	return err
}
