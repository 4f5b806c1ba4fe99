// Package outbox implements the transactional-outbox pattern: an event row is
// written in the same database transaction as the business change it reports,
// and a background dispatcher later drains it to the message bus.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a durable record of a business change awaiting publication.
// Rows are never deleted; published_at marks delivery.
type Event struct {
	ID            uuid.UUID
	AggregateID   uuid.UUID
	AggregateType string
	EventType     string
	Payload       []byte
	RetryCount    int
	LastError     string
	PublishedAt   *time.Time
	NextRetryAt   *time.Time
	CreatedAt     time.Time
}

// NewEvent builds an event with a serialized payload snapshot.
func NewEvent(aggregateID uuid.UUID, aggregateType, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Store is the dispatcher's view of the outbox table.
type Store interface {
	// FetchDue claims up to batch unpublished rows whose retry time has
	// passed, ordered by creation time. Claimed rows are invisible to other
	// dispatchers until claimUntil so concurrent workers do not double-send
	// within the window; a crash before marking simply redelivers later.
	FetchDue(ctx context.Context, batch int, claimUntil time.Time) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRetry time.Time) error
}
