package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"auction_watcher/internal/cleanup"
	"auction_watcher/internal/domain"
)

// ListingService is the read path used by the dashboard and API.
type ListingService struct {
	cache   CacheStore
	cleaner Cleaner
	logger  *slog.Logger
	now     func() time.Time
}

func NewListingService(cache CacheStore, cleaner Cleaner, logger *slog.Logger) *ListingService {
	return &ListingService{
		cache:   cache,
		cleaner: cleaner,
		logger:  logger,
		now:     time.Now,
	}
}

// GetCurrentListings returns the cached, still-open listings for terms.
// Remaining minutes are counted down from the time the snapshot was written,
// and listings that closed since then are removed from the cache.
func (s *ListingService) GetCurrentListings(ctx context.Context, terms []string) ([]domain.Listing, error) {
	key := domain.PartitionKey(terms)
	if key == "" {
		return []domain.Listing{}, nil
	}

	entries, err := s.cache.GetCurrent(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get cached listings: %w", err)
	}

	now := s.now()
	listings := make([]domain.Listing, 0, len(entries))
	var closed []domain.Listing
	for _, entry := range entries {
		listing := countDown(entry, now)
		if cleanup.Eligible(listing) {
			closed = append(closed, listing)
			continue
		}
		listings = append(listings, listing)
	}

	if len(closed) > 0 {
		if _, err := s.cleaner.RemoveClosed(ctx, key, closed); err != nil {
			s.logger.Warn("read-time cleanup failed", "partition", key, "error", err)
		}
	}

	return listings, nil
}

func countDown(entry domain.CacheEntry, now time.Time) domain.Listing {
	listing := entry.Listing
	if listing.MinutesRemaining == nil || entry.CachedAt.IsZero() {
		return listing
	}

	stored := *listing.MinutesRemaining
	elapsed := int(now.Sub(entry.CachedAt) / time.Minute)
	if elapsed <= 0 {
		return listing
	}

	remaining := stored - elapsed
	if remaining <= 0 {
		remaining = 0
		listing.IsClosed = true
	}
	listing.MinutesRemaining = &remaining
	return listing
}
