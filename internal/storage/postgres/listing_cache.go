package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"auction_watcher/internal/domain"
)

// insertBatchSize keeps a multi-row insert well below postgres' bind parameter
// limit.
const insertBatchSize = 500

type cacheRow struct {
	PartitionKey     string         `db:"partition_key"`
	ListingID        string         `db:"listing_id"`
	Position         int            `db:"position"`
	Title            string         `db:"title"`
	Description      string         `db:"description"`
	Location         string         `db:"location"`
	CurrentBid       string         `db:"current_bid"`
	URL              string         `db:"url"`
	ImageRef         string         `db:"image_ref"`
	SearchTerms      pq.StringArray `db:"search_terms"`
	TimeLeftText     string         `db:"time_left_text"`
	MinutesRemaining *int           `db:"minutes_remaining"`
	IsClosed         bool           `db:"is_closed"`
	CachedAt         time.Time      `db:"cached_at"`
	ExpiresAt        time.Time      `db:"expires_at"`
}

func (r cacheRow) toEntry() domain.CacheEntry {
	return domain.CacheEntry{
		Listing: domain.Listing{
			ID:               r.ListingID,
			Title:            r.Title,
			Description:      r.Description,
			Location:         r.Location,
			CurrentBid:       r.CurrentBid,
			URL:              r.URL,
			ImageRef:         r.ImageRef,
			SearchTerms:      []string(r.SearchTerms),
			TimeLeftText:     r.TimeLeftText,
			MinutesRemaining: r.MinutesRemaining,
			IsClosed:         r.IsClosed,
		},
		CachedAt:  r.CachedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// ListingCacheStore keeps one row per listing per partition. A partition is
// replaced inside a single transaction so readers see either the previous or
// the new snapshot.
type ListingCacheStore struct {
	db  *sqlx.DB
	tm  *TransactionManager
	now func() time.Time
}

func NewListingCacheStore(db *sqlx.DB, tm *TransactionManager) *ListingCacheStore {
	return &ListingCacheStore{db: db, tm: tm, now: time.Now}
}

func (s *ListingCacheStore) Put(ctx context.Context, key string, listings []domain.Listing, ttl time.Duration) error {
	now := s.now().UTC()
	rows := make([]cacheRow, 0, len(listings))
	for i, l := range listings {
		terms := pq.StringArray(l.SearchTerms)
		if terms == nil {
			terms = pq.StringArray{}
		}
		rows = append(rows, cacheRow{
			PartitionKey:     key,
			ListingID:        l.ID,
			Position:         i,
			Title:            l.Title,
			Description:      l.Description,
			Location:         l.Location,
			CurrentBid:       l.CurrentBid,
			URL:              l.URL,
			ImageRef:         l.ImageRef,
			SearchTerms:      terms,
			TimeLeftText:     l.TimeLeftText,
			MinutesRemaining: l.MinutesRemaining,
			IsClosed:         l.IsClosed,
			CachedAt:         now,
			ExpiresAt:        now.Add(ttl),
		})
	}

	return s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, s.db)

		// Expired partitions are swept on every write.
		if _, err := exec.ExecContext(ctx,
			`DELETE FROM listing_cache WHERE partition_key = $1 OR expires_at <= $2`,
			key, now,
		); err != nil {
			return fmt.Errorf("clear partition: %w", err)
		}

		query := `
			INSERT INTO listing_cache (
				partition_key, listing_id, position, title, description, location,
				current_bid, url, image_ref, search_terms, time_left_text,
				minutes_remaining, is_closed, cached_at, expires_at
			) VALUES (
				:partition_key, :listing_id, :position, :title, :description, :location,
				:current_bid, :url, :image_ref, :search_terms, :time_left_text,
				:minutes_remaining, :is_closed, :cached_at, :expires_at
			)`

		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			if _, err := sqlx.NamedExecContext(ctx, exec, query, rows[start:end]); err != nil {
				return fmt.Errorf("insert listings: %w", err)
			}
		}
		return nil
	})
}

func (s *ListingCacheStore) GetCurrent(ctx context.Context, key string) ([]domain.CacheEntry, error) {
	var rows []cacheRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT partition_key, listing_id, position, title, description, location,
		       current_bid, url, image_ref, search_terms, time_left_text,
		       minutes_remaining, is_closed, cached_at, expires_at
		FROM listing_cache
		WHERE partition_key = $1 AND expires_at > $2
		ORDER BY position`,
		key, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("select partition: %w", err)
	}

	entries := make([]domain.CacheEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}

func (s *ListingCacheStore) Invalidate(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM listing_cache WHERE partition_key = $1`, key); err != nil {
		return fmt.Errorf("invalidate partition: %w", err)
	}
	return nil
}

// Delete removes ids from the partition in one statement and returns the number
// of rows that were actually present.
func (s *ListingCacheStore) Delete(ctx context.Context, key string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM listing_cache WHERE partition_key = $1 AND listing_id = ANY($2)`,
		key, pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("delete listings: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *ListingCacheStore) Stats(ctx context.Context) (domain.CacheStats, error) {
	var rows []struct {
		Total int `db:"total"`
		Valid int `db:"valid"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE expires_at > $1) AS valid
		FROM listing_cache
		GROUP BY partition_key`,
		s.now().UTC(),
	)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	var stats domain.CacheStats
	for _, r := range rows {
		stats.Partitions++
		stats.Listings += r.Valid
		if r.Valid > 0 {
			stats.ValidPartitions++
		} else {
			stats.ExpiredPartitions++
		}
	}
	return stats, nil
}
