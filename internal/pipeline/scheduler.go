package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
)

// Refresher runs a single refresh. *Engine implements it.
type Refresher interface {
	Refresh(ctx context.Context, opts RefreshOptions) (*Session, error)
}

// Scheduler refreshes once per forecast cycle so the archive keeps a
// reference for every cycle even when nobody asks for one.
type Scheduler struct {
	refresher  Refresher
	schedule   domain.CycleSchedule
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewScheduler creates a Scheduler. Failed refreshes are retried with
// exponential backoff between minBackoff and maxBackoff.
func NewScheduler(r Refresher, schedule domain.CycleSchedule, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, minBackoff, maxBackoff time.Duration) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		refresher:  r,
		schedule:   schedule,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Run refreshes immediately, then again after every cycle boundary, until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"morning_boundary", s.schedule.Morning,
		"evening_boundary", s.schedule.Evening,
	)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	backoff := s.minBackoff
	for {
		if _, err := s.refresher.Refresh(ctx, RefreshOptions{}); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("scheduled refresh failed", "error", err, "retry_in", backoff)
			if !s.sleep(ctx, backoff) {
				break
			}
			backoff = retry.NextBackoff(backoff, s.maxBackoff)
			continue
		}
		backoff = s.minBackoff

		now := s.clock.Now()
		next := s.schedule.NextBoundary(now)
		s.logger.Debug("next scheduled refresh", "at", next)
		if !s.sleep(ctx, next.Sub(now)) {
			break
		}
	}

	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	return nil
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
