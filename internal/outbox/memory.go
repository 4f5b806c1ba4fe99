package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MemoryStore is an in-memory outbox for unit tests and dev mode. The pgx.Tx
// argument of AppendTx is ignored; callers provide atomicity themselves.
type MemoryStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*Event
}

// NewMemoryStore creates an empty in-memory outbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[uuid.UUID]*Event)}
}

func (s *MemoryStore) AppendTx(_ context.Context, _ pgx.Tx, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := evt
	s.events[evt.ID] = &copied
	return nil
}

func (s *MemoryStore) FetchDue(_ context.Context, batch int, claimUntil time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []*Event
	for _, evt := range s.events {
		if evt.PublishedAt != nil {
			continue
		}
		if evt.NextRetryAt != nil && evt.NextRetryAt.After(now) {
			continue
		}
		due = append(due, evt)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > batch {
		due = due[:batch]
	}

	items := make([]Event, 0, len(due))
	for _, evt := range due {
		claim := claimUntil
		evt.NextRetryAt = &claim
		items = append(items, *evt)
	}
	return items, nil
}

func (s *MemoryStore) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt, ok := s.events[id]; ok {
		published := at
		evt.PublishedAt = &published
		evt.LastError = ""
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string, nextRetry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt, ok := s.events[id]; ok {
		evt.RetryCount++
		evt.LastError = lastError
		retry := nextRetry
		evt.NextRetryAt = &retry
	}
	return nil
}

// Events returns a snapshot of all rows, for assertions in tests.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Event, 0, len(s.events))
	for _, evt := range s.events {
		items = append(items, *evt)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}
