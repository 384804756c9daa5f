package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"auction_watcher/internal/domain"
	"auction_watcher/internal/metrics"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

// Scheduler drives the sync state machine: one pass at start, then one pass per
// interval or per coalesced force request, never two at the same time.
type Scheduler struct {
	syncer Syncer
	logger *slog.Logger
	force  chan struct{}
	now    func() time.Time

	mu         sync.RWMutex
	interval   time.Duration
	running    bool
	state      domain.PassState
	lastPassAt time.Time
	nextPassAt time.Time
	lastErr    error
}

func NewScheduler(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
		force:    make(chan struct{}, 1),
		now:      time.Now,
		state:    domain.StateIdle,
	}
}

// Start blocks until ctx is cancelled. A pass in progress is allowed to finish
// its current state before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.nextPassAt = time.Time{}
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started", "interval", s.Interval())

	s.runSync(ctx)

	for {
		interval := s.Interval()
		timer := time.NewTimer(interval)

		s.mu.Lock()
		s.nextPassAt = s.now().Add(interval)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runSync(ctx)
		case <-s.force:
			timer.Stop()
			s.logger.Info("forced sync")
			s.runSync(ctx)
		}
	}
}

// ForceSync asks for a pass as soon as the worker is idle. Requests made while
// one is already pending collapse into it. It never blocks.
func (s *Scheduler) ForceSync() {
	metrics.ForceSyncRequests.Inc()
	select {
	case s.force <- struct{}{}:
	default:
		s.logger.Debug("force sync already pending")
	}
}

// SetInterval changes the wait used from the next idle period on.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	s.logger.Info("sync interval updated", "interval", d)
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// ObserveState records the state a running pass has entered.
func (s *Scheduler) ObserveState(state domain.PassState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := domain.Status{
		Running:     s.running,
		State:       s.state,
		LastPassAt:  s.lastPassAt,
		NextPassETA: s.nextPassAt,
		Interval:    s.interval,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	// A failed pass stays visible until the next one begins.
	s.mu.Lock()
	s.state = domain.StateIdle
	s.mu.Unlock()

	start := s.now()
	stats, err := s.syncer.Sync(ctx)
	metrics.SyncPassDuration.Observe(s.now().Sub(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPassAt = s.now()

	switch {
	case errors.Is(err, context.Canceled):
		metrics.SyncPassesTotal.WithLabelValues("interrupted").Inc()
		s.logger.Info("sync interrupted by shutdown")
	case err != nil:
		s.state = domain.StateFailed
		s.lastErr = err
		metrics.SyncPassesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("sync failed", "error", err)
		return
	case stats != nil && stats.Skipped:
		s.lastErr = nil
		metrics.SyncPassesTotal.WithLabelValues("skipped").Inc()
	default:
		s.lastErr = nil
		metrics.SyncPassesTotal.WithLabelValues("success").Inc()
	}

	s.state = domain.StateIdle
}
