// Package trigger reacts to watch-list edits by invalidating the affected
// cache partition and asking the scheduler for an immediate pass.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"auction_watcher/internal/domain"
)

type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type ForceSyncer interface {
	ForceSync()
}

type Trigger struct {
	cache   Invalidator
	syncer  ForceSyncer
	logger  *slog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

func New(cache Invalidator, syncer ForceSyncer, logger *slog.Logger) *Trigger {
	return &Trigger{
		cache:   cache,
		syncer:  syncer,
		logger:  logger.With("component", "trigger"),
		timeout: 10 * time.Second,
	}
}

// OnWatchConfigurationChanged returns immediately. In the background it drops
// any stale snapshot for the new term set and then requests a pass.
func (t *Trigger) OnWatchConfigurationChanged(cfg domain.WatchConfiguration) {
	key := cfg.PartitionKey()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		if key != "" {
			ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
			defer cancel()

			if err := t.cache.Invalidate(ctx, key); err != nil {
				t.logger.Warn("failed to invalidate partition", "partition", key, "error", err)
			} else {
				t.logger.Debug("partition invalidated", "partition", key)
			}
		}

		t.syncer.ForceSync()
	}()
}

// Wait blocks until every background invalidation has finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
