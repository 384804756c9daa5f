package service

import (
	"context"
	"sync"
	"time"

	"auction_watcher/internal/domain"
)

// memoryCache is an in-process CacheStore used by the end-to-end pass tests.
type memoryCache struct {
	mu         sync.Mutex
	partitions map[string][]domain.CacheEntry
	now        func() time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		partitions: make(map[string][]domain.CacheEntry),
		now:        time.Now,
	}
}

func (m *memoryCache) Put(_ context.Context, key string, listings []domain.Listing, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	entries := make([]domain.CacheEntry, 0, len(listings))
	for _, l := range listings {
		entries = append(entries, domain.CacheEntry{Listing: l, CachedAt: now, ExpiresAt: now.Add(ttl)})
	}
	m.partitions[key] = entries
	return nil
}

func (m *memoryCache) GetCurrent(_ context.Context, key string) ([]domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []domain.CacheEntry
	for _, e := range m.partitions[key] {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryCache) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, key)
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := m.partitions[key][:0]
	removed := 0
	for _, e := range m.partitions[key] {
		if _, ok := drop[e.Listing.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.partitions[key] = kept
	return removed, nil
}

func (m *memoryCache) Stats(_ context.Context) (domain.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var stats domain.CacheStats
	for _, entries := range m.partitions {
		stats.Partitions++
		valid := false
		for _, e := range entries {
			if !e.Expired(now) {
				valid = true
				stats.Listings++
			}
		}
		if valid {
			stats.ValidPartitions++
		} else {
			stats.ExpiredPartitions++
		}
	}
	return stats, nil
}

// memoryLedger satisfies dedup.LedgerStore.
type memoryLedger struct {
	mu      sync.Mutex
	entries map[domain.LedgerKind]map[string]domain.LedgerEntry
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: map[domain.LedgerKind]map[string]domain.LedgerEntry{
		domain.LedgerArrival: {},
		domain.LedgerUrgent:  {},
	}}
}

func (m *memoryLedger) TryRecord(_ context.Context, kind domain.LedgerKind, entry domain.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[kind][entry.ListingID]; ok {
		return false, nil
	}
	m.entries[kind][entry.ListingID] = entry
	return true, nil
}

func (m *memoryLedger) LoadIDs(_ context.Context, kind domain.LedgerKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries[kind]))
	for id := range m.entries[kind] {
		ids = append(ids, id)
	}
	return ids, nil
}
