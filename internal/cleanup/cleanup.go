// Package cleanup removes listings that have provably closed from the cache.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"

	"auction_watcher/internal/domain"
	"auction_watcher/internal/metrics"
	"auction_watcher/internal/timeleft"
)

// Deleter is the part of the cache store cleanup needs. Delete must be safe to
// call concurrently for the same partition.
type Deleter interface {
	Delete(ctx context.Context, key string, ids []string) (int, error)
}

type Service struct {
	store  Deleter
	logger *slog.Logger
}

func New(store Deleter, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "cleanup"),
	}
}

// RemoveClosed deletes every closed listing of snapshot from partition key and
// returns how many cache entries were removed. Notification ledgers are never
// touched.
func (s *Service) RemoveClosed(ctx context.Context, key string, snapshot []domain.Listing) (int, error) {
	var ids []string
	for _, listing := range snapshot {
		if Eligible(listing) {
			ids = append(ids, listing.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	removed, err := s.store.Delete(ctx, key, ids)
	if err != nil {
		return 0, fmt.Errorf("delete closed listings: %w", err)
	}

	if removed > 0 {
		metrics.ListingsRemovedTotal.Add(float64(removed))
		s.logger.Info("removed closed listings", "partition", key, "count", removed)
	}

	return removed, nil
}

// Eligible reports whether a listing is closed: no minutes left, or no parsable
// remaining time and a closed-state marker in its text.
func Eligible(listing domain.Listing) bool {
	if listing.MinutesRemaining != nil {
		return *listing.MinutesRemaining <= 0
	}
	return listing.IsClosed || timeleft.IsClosedMarker(listing.TimeLeftText)
}
