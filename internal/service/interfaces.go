package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"auction_watcher/internal/domain"
)

type Source interface {
	Name() string
	Fetch(ctx context.Context, searchTerm string) ([]domain.RawListing, error)
}

// CacheStore keeps the current snapshot of listings per search partition.
// Put must be atomic with respect to GetCurrent for the same key.
type CacheStore interface {
	Put(ctx context.Context, key string, listings []domain.Listing, ttl time.Duration) error
	GetCurrent(ctx context.Context, key string) ([]domain.CacheEntry, error)
	Invalidate(ctx context.Context, key string) error
	Delete(ctx context.Context, key string, ids []string) (int, error)
	Stats(ctx context.Context) (domain.CacheStats, error)
}

type Deduplicator interface {
	ShouldNotifyArrival(ctx context.Context, listing *domain.Listing) (bool, error)
	ShouldNotifyUrgent(ctx context.Context, listing *domain.Listing) (bool, error)
}

type Cleaner interface {
	RemoveClosed(ctx context.Context, key string, snapshot []domain.Listing) (int, error)
}

type WatchProvider interface {
	Snapshot() domain.WatchConfiguration
}

type Notifier interface {
	NotifyArrival(ctx context.Context, listing *domain.Listing) error
	NotifyUrgent(ctx context.Context, listing *domain.Listing) error
}
