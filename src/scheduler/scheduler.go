package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/services"
)

// Scheduler triggers periodic portfolio updates. It never overlaps runs:
// when a manual run is already in flight the scheduled trigger is skipped
// and logged, relying on the updater's own in-flight token.
type Scheduler struct {
	updater  services.UpdaterService
	interval time.Duration
}

// New creates a scheduler that fires every interval.
func New(updater services.UpdaterService, interval time.Duration) *Scheduler {
	return &Scheduler{updater: updater, interval: interval}
}

// Start blocks until ctx is cancelled, triggering a run every interval.
// Intended to be launched on its own goroutine from main.
func (s *Scheduler) Start(ctx context.Context) {
	logger.L.Info("Scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if err := s.updater.RunUpdate(ctx); err != nil {
				if errors.Is(err, services.ErrUpdateInProgress) {
					logger.L.Info("Scheduled update skipped, a run is already in flight")
					continue
				}
				logger.L.Error("Scheduled update failed", "error", err)
			}
		}
	}
}
