package payorder

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drives the expiry sweep on a fixed interval. Orders are
// time-bounded through expires_at rather than request cancellation, so the
// sweep is the only path from PENDING to EXPIRED.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper constructs an expiry sweeper.
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger.With("component", "order-sweeper"),
	}
}

// Start launches the sweep loop in a goroutine; it stops with the context.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.service.ExpireOrders(ctx); err != nil {
			s.logger.Error("expiry sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
