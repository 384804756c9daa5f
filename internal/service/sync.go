package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"auction_watcher/internal/config"
	"auction_watcher/internal/domain"
	"auction_watcher/internal/metrics"
	"auction_watcher/internal/timeleft"
)

var (
	// ErrCacheWrite marks a pass that failed before notifying because the
	// snapshot could not be persisted.
	ErrCacheWrite = errors.New("cache write failed")
	// ErrNoFetchSucceeded is returned when every search term failed to fetch;
	// the previous snapshot is left untouched.
	ErrNoFetchSucceeded = errors.New("no search term could be fetched")
)

type SyncService struct {
	source   Source
	cache    CacheStore
	dedup    Deduplicator
	cleaner  Cleaner
	watch    WatchProvider
	notifier Notifier
	logger   *slog.Logger
	config   config.SyncConfig

	onState func(domain.PassState)
	now     func() time.Time
}

func NewSyncService(
	source Source,
	cache CacheStore,
	dedup Deduplicator,
	cleaner Cleaner,
	watch WatchProvider,
	notifier Notifier,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 10 * time.Minute
	}

	return &SyncService{
		source:   source,
		cache:    cache,
		dedup:    dedup,
		cleaner:  cleaner,
		watch:    watch,
		notifier: notifier,
		logger:   logger.With("source", source.Name()),
		config:   cfg,
		onState:  func(domain.PassState) {},
		now:      time.Now,
	}
}

// OnStateChange registers fn to be told about every state the pass enters.
func (s *SyncService) OnStateChange(fn func(domain.PassState)) {
	if fn != nil {
		s.onState = fn
	}
}

type termBatch struct {
	term     string
	listings []domain.RawListing
}

// Sync runs one pass: fetch, normalize, reconcile, notify, clean.
// Cancelling ctx stops the pass between states; the state in progress always
// runs to completion.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := s.now()

	watch := s.watch.Snapshot()
	terms := domain.NormalizeTerms(watch.SearchTerms)
	key := domain.PartitionKey(terms)

	stats := &domain.SyncStats{
		PartitionKey: key,
		SearchTerms:  len(terms),
	}

	if len(terms) == 0 {
		s.logger.Info("no search words configured, skipping sync")
		stats.Skipped = true
		return stats, nil
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	s.logger.Info("starting sync", "search_words", terms, "partition", key)

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.PassTimeout)
	defer cancel()

	s.onState(domain.StateFetching)
	batches := s.fetch(work, terms, stats)
	if len(batches) == 0 {
		return stats, ErrNoFetchSucceeded
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	s.onState(domain.StateNormalizing)
	listings := s.normalize(batches, watch, stats)
	s.logger.Debug("normalized listings",
		"unique", stats.Unique,
		"blacklisted", stats.Blacklisted,
	)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	s.onState(domain.StateReconciling)
	if err := s.cache.Put(work, key, listings, s.config.CacheTTL); err != nil {
		return stats, fmt.Errorf("%w: put partition %q: %w", ErrCacheWrite, key, err)
	}
	metrics.CachedListings.Set(float64(len(listings)))
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	s.onState(domain.StateNotifying)
	s.notify(work, listings, stats)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	s.onState(domain.StateCleaning)
	removed, err := s.cleaner.RemoveClosed(work, key, listings)
	if err != nil {
		s.logger.Error("cleanup failed", "error", err)
	}
	stats.Removed = removed

	stats.Duration = s.now().Sub(startTime)

	s.logger.Info("sync completed",
		"fetched", stats.Fetched,
		"unique", stats.Unique,
		"fetch_errors", stats.FetchErrors,
		"arrivals", stats.ArrivalsSent,
		"urgent", stats.UrgentSent,
		"notify_errors", stats.NotifyErrors,
		"removed", stats.Removed,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) fetch(ctx context.Context, terms []string, stats *domain.SyncStats) []termBatch {
	batches := make([]termBatch, 0, len(terms))
	for _, term := range terms {
		listings, err := s.source.Fetch(ctx, term)
		if err != nil {
			stats.FetchErrors++
			metrics.FetchErrorsTotal.Inc()
			s.logger.Warn("fetch failed, continuing with remaining terms",
				"search_word", term,
				"error", err,
			)
			continue
		}

		s.logger.Debug("fetched search word", "search_word", term, "count", len(listings))
		stats.Fetched += len(listings)
		metrics.ListingsFetched.Add(float64(len(listings)))
		batches = append(batches, termBatch{term: term, listings: listings})
	}
	return batches
}

// normalize parses time-left text, merges listings found under several terms
// and drops blacklisted ids. Output order follows first appearance.
func (s *SyncService) normalize(batches []termBatch, watch domain.WatchConfiguration, stats *domain.SyncStats) []domain.Listing {
	index := make(map[string]int)
	hidden := make(map[string]struct{})
	var listings []domain.Listing

	for _, batch := range batches {
		for _, raw := range batch.listings {
			id := raw.ID
			if id == "" {
				id = raw.URL
			}
			if id == "" {
				s.logger.Debug("dropping listing without id", "title", raw.Title)
				continue
			}

			if i, ok := index[id]; ok {
				if !listings[i].HasTerm(batch.term) {
					listings[i].SearchTerms = append(listings[i].SearchTerms, batch.term)
				}
				continue
			}
			if _, ok := hidden[id]; ok {
				continue
			}
			if watch.IsBlacklisted(id) {
				hidden[id] = struct{}{}
				stats.Blacklisted++
				continue
			}

			parsed := timeleft.Parse(raw.TimeLeftText)
			if parsed.Minutes == nil && raw.TimeLeftText != "" {
				s.logger.Debug("unrecognized time left", "listing_id", id, "time_left", raw.TimeLeftText)
			}

			index[id] = len(listings)
			listings = append(listings, domain.Listing{
				ID:               id,
				Title:            raw.Title,
				Description:      raw.Description,
				Location:         raw.Location,
				CurrentBid:       raw.CurrentBid,
				URL:              raw.URL,
				ImageRef:         raw.ImageURL,
				SearchTerms:      []string{batch.term},
				TimeLeftText:     raw.TimeLeftText,
				MinutesRemaining: parsed.Minutes,
				IsClosed:         parsed.Closed,
			})
		}
	}

	stats.Unique = len(listings)
	return listings
}

func (s *SyncService) notify(ctx context.Context, listings []domain.Listing, stats *domain.SyncStats) {
	if s.notifier == nil {
		s.logger.Debug("no notifier configured, skipping notifications")
		return
	}

	for i := range listings {
		listing := &listings[i]

		if ok := s.decide(ctx, "arrival", listing, s.dedup.ShouldNotifyArrival, stats); ok {
			if err := s.notifier.NotifyArrival(ctx, listing); err != nil {
				s.notifyFailed("arrival", listing, err, stats)
			} else {
				stats.ArrivalsSent++
				metrics.NotificationsTotal.WithLabelValues("arrival", "sent").Inc()
				s.logger.Info("arrival notification sent",
					"listing_id", listing.ID,
					"title", listing.Title,
					"search_words", listing.SearchTerms,
				)
			}
		}

		if !s.isUrgent(listing) {
			continue
		}
		if ok := s.decide(ctx, "urgent", listing, s.dedup.ShouldNotifyUrgent, stats); ok {
			if err := s.notifier.NotifyUrgent(ctx, listing); err != nil {
				s.notifyFailed("urgent", listing, err, stats)
			} else {
				stats.UrgentSent++
				metrics.NotificationsTotal.WithLabelValues("urgent", "sent").Inc()
				s.logger.Info("urgent notification sent",
					"listing_id", listing.ID,
					"title", listing.Title,
					"minutes_remaining", *listing.MinutesRemaining,
				)
			}
		}
	}
}

func (s *SyncService) decide(
	ctx context.Context,
	kind string,
	listing *domain.Listing,
	check func(context.Context, *domain.Listing) (bool, error),
	stats *domain.SyncStats,
) bool {
	ok, err := check(ctx, listing)
	if err != nil {
		stats.NotifyErrors++
		metrics.NotificationsTotal.WithLabelValues(kind, "ledger_error").Inc()
		s.logger.Error("ledger check failed",
			"kind", kind,
			"listing_id", listing.ID,
			"error", err,
		)
		return false
	}
	return ok
}

func (s *SyncService) notifyFailed(kind string, listing *domain.Listing, err error, stats *domain.SyncStats) {
	stats.NotifyErrors++
	metrics.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
	s.logger.Warn("notification failed",
		"kind", kind,
		"listing_id", listing.ID,
		"error", err,
	)
}

// isUrgent reports whether the listing closes within the configured threshold.
// Listings with unknown remaining time never qualify.
func (s *SyncService) isUrgent(listing *domain.Listing) bool {
	if listing.IsClosed || listing.MinutesRemaining == nil || *listing.MinutesRemaining < 0 {
		return false
	}
	return *listing.MinutesRemaining <= s.config.UrgentThresholdMinutes
}
