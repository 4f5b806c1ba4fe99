package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Inbox makes at-least-once bus delivery look like at-most-once application.
// ClaimTx inserts (consumer, eventID) under the uniqueness constraint of the
// consumed_events table and reports whether this call won the claim. Handlers
// run the claim and their side effects in the same transaction, so a handler
// failure after a winning claim rolls the claim back and the redelivered
// message is processed cleanly.
type Inbox interface {
	ClaimTx(ctx context.Context, tx pgx.Tx, consumer, eventID string) (bool, error)
}

// PostgresInbox stores consumed-event claims in PostgreSQL.
type PostgresInbox struct {
	db *pgxpool.Pool
}

// NewPostgresInbox constructs a Postgres-backed inbox.
func NewPostgresInbox(db *pgxpool.Pool) *PostgresInbox {
	return &PostgresInbox{db: db}
}

// ClaimTx attempts to record the (consumer, eventID) pair. A zero rows-affected
// result means another delivery already claimed it.
func (i *PostgresInbox) ClaimTx(ctx context.Context, tx pgx.Tx, consumer, eventID string) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO consumed_events (consumer_name, event_id)
        VALUES ($1, $2)
        ON CONFLICT (consumer_name, event_id) DO NOTHING`, consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("insert consumed event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MemoryInbox is an in-memory inbox for unit tests. The pgx.Tx argument is
// ignored.
type MemoryInbox struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewMemoryInbox creates an empty in-memory inbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{claimed: make(map[string]struct{})}
}

func (i *MemoryInbox) ClaimTx(_ context.Context, _ pgx.Tx, consumer, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := consumer + "\x00" + eventID
	if _, exists := i.claimed[key]; exists {
		return false, nil
	}
	i.claimed[key] = struct{}{}
	return true, nil
}
