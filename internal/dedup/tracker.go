// Package dedup guarantees that each listing produces at most one arrival and
// at most one urgent notification, across passes and process restarts.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"auction_watcher/internal/domain"
)

// LedgerStore persists notification ledgers. TryRecord must insert the entry
// only if no entry with the same listing id exists for kind, and report whether
// this call performed the insert. Concurrent calls for one id must yield
// exactly one true.
type LedgerStore interface {
	TryRecord(ctx context.Context, kind domain.LedgerKind, entry domain.LedgerEntry) (bool, error)
	LoadIDs(ctx context.Context, kind domain.LedgerKind) ([]string, error)
}

// Tracker answers "should this listing be notified?" by recording the decision
// in the durable ledger. The in-memory sets only short-circuit ids that are
// already known to be recorded.
type Tracker struct {
	store  LedgerStore
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	known map[domain.LedgerKind]map[string]struct{}
}

func NewTracker(store LedgerStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With("component", "dedup"),
		now:    time.Now,
		known: map[domain.LedgerKind]map[string]struct{}{
			domain.LedgerArrival: {},
			domain.LedgerUrgent:  {},
		},
	}
}

// Load reads both ledgers into memory. It must succeed before the first pass
// so a restart does not re-announce listings notified by a previous process.
func (t *Tracker) Load(ctx context.Context) error {
	for _, kind := range []domain.LedgerKind{domain.LedgerArrival, domain.LedgerUrgent} {
		ids, err := t.store.LoadIDs(ctx, kind)
		if err != nil {
			return fmt.Errorf("load %s ledger: %w", kind, err)
		}

		t.mu.Lock()
		for _, id := range ids {
			t.known[kind][id] = struct{}{}
		}
		t.mu.Unlock()

		t.logger.Info("ledger loaded", "kind", kind, "entries", len(ids))
	}
	return nil
}

func (t *Tracker) ShouldNotifyArrival(ctx context.Context, listing *domain.Listing) (bool, error) {
	return t.shouldNotify(ctx, domain.LedgerArrival, listing)
}

func (t *Tracker) ShouldNotifyUrgent(ctx context.Context, listing *domain.Listing) (bool, error) {
	return t.shouldNotify(ctx, domain.LedgerUrgent, listing)
}

// Count returns the number of ids known for kind.
func (t *Tracker) Count(kind domain.LedgerKind) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.known[kind])
}

func (t *Tracker) shouldNotify(ctx context.Context, kind domain.LedgerKind, listing *domain.Listing) (bool, error) {
	if t.seen(kind, listing.ID) {
		return false, nil
	}

	inserted, err := t.store.TryRecord(ctx, kind, domain.NewLedgerEntry(listing, t.now().UTC()))
	if err != nil {
		return false, fmt.Errorf("record %s for listing %s: %w", kind, listing.ID, err)
	}

	t.mu.Lock()
	t.known[kind][listing.ID] = struct{}{}
	t.mu.Unlock()

	return inserted, nil
}

func (t *Tracker) seen(kind domain.LedgerKind, id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.known[kind][id]
	return ok
}
