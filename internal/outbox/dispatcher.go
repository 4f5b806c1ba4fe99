package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/tracklane/tracklane/internal/events"
)

const (
	claimWindow    = 30 * time.Second
	publishTimeout = 5 * time.Second
	backoffBase    = time.Second
	backoffCap     = time.Minute
)

// Publisher sends a payload to the message bus. Satisfied by
// messaging.RabbitPublisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// Dispatcher drains the outbox to the message bus on a polling schedule.
// Delivery is at-least-once: a crash between publish and MarkPublished causes
// redelivery on a later cycle, and downstream consumers deduplicate.
type Dispatcher struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewDispatcher constructs an outbox dispatcher.
func NewDispatcher(store Store, publisher Publisher, interval time.Duration, batch int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batch,
		logger:    logger.With("component", "outbox"),
	}
}

// Start launches the polling loop in a goroutine; it stops with the context.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

func (d *Dispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.Dispatch(ctx); err != nil {
			d.logger.Error("outbox dispatch cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Dispatch runs one poll cycle: claim due rows, publish each, record the
// outcome. A failing row is rescheduled with backoff, never dropped.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	due, err := d.store.FetchDue(ctx, d.batchSize, time.Now().Add(claimWindow))
	if err != nil {
		return err
	}

	for _, evt := range due {
		d.publishOne(ctx, evt)
	}
	return nil
}

func (d *Dispatcher) publishOne(ctx context.Context, evt Event) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	routingKey := events.RoutingKey(evt.EventType)
	if err := d.publisher.Publish(pubCtx, routingKey, evt.Payload); err != nil {
		nextRetry := time.Now().Add(Backoff(evt.RetryCount + 1))
		d.logger.Warn("publish outbox event failed",
			"event_id", evt.ID, "event_type", evt.EventType,
			"retry_count", evt.RetryCount+1, "next_retry_at", nextRetry, "error", err)
		if markErr := d.store.MarkFailed(ctx, evt.ID, err.Error(), nextRetry); markErr != nil {
			d.logger.Error("record outbox failure", "event_id", evt.ID, "error", markErr)
		}
		return
	}

	if err := d.store.MarkPublished(ctx, evt.ID, time.Now().UTC()); err != nil {
		// The event was sent but not marked; the next cycle redelivers it.
		d.logger.Error("mark outbox event published", "event_id", evt.ID, "error", err)
	}
}

// Backoff returns the delay before the given attempt: capped exponential,
// 1s, 2s, 4s, ... up to one minute.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}
