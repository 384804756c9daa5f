package domain

import (
	"sort"
	"strings"
	"time"
)

// RawListing is one search hit as returned by the scraper.
type RawListing struct {
	ID           string
	Title        string
	Description  string
	Location     string
	CurrentBid   string
	URL          string
	TimeLeftText string
	ImageURL     string
}

// Listing is a harvested auction item after normalization.
type Listing struct {
	ID               string   `json:"id" bson:"listing_id"`
	Title            string   `json:"title" bson:"title"`
	Description      string   `json:"description" bson:"description"`
	Location         string   `json:"location" bson:"location"`
	CurrentBid       string   `json:"current_bid" bson:"current_bid"`
	URL              string   `json:"url" bson:"url"`
	ImageRef         string   `json:"image_ref" bson:"image_ref"`
	SearchTerms      []string `json:"search_terms" bson:"search_terms"`
	TimeLeftText     string   `json:"time_left" bson:"time_left"`
	MinutesRemaining *int     `json:"minutes_remaining" bson:"minutes_remaining,omitempty"`
	IsClosed         bool     `json:"is_closed" bson:"is_closed"`
}

// HasTerm reports whether term already caused this listing to be retained.
func (l *Listing) HasTerm(term string) bool {
	for _, t := range l.SearchTerms {
		if t == term {
			return true
		}
	}
	return false
}

// CacheEntry wraps a listing with its cache bookkeeping.
type CacheEntry struct {
	Listing   Listing
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry must no longer be served at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type CacheStats struct {
	Partitions        int `json:"partitions"`
	ValidPartitions   int `json:"valid_partitions"`
	ExpiredPartitions int `json:"expired_partitions"`
	Listings          int `json:"listings"`
}

// WatchConfiguration is the set of search words and hidden listings in effect
// at the start of a pass.
type WatchConfiguration struct {
	SearchTerms []string `json:"search_words"`
	Blacklist   []string `json:"blacklisted_ids"`
}

func (w WatchConfiguration) IsBlacklisted(id string) bool {
	for _, b := range w.Blacklist {
		if b == id {
			return true
		}
	}
	return false
}

func (w WatchConfiguration) PartitionKey() string {
	return PartitionKey(w.SearchTerms)
}

// NormalizeTerm lowercases and trims a search word.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// PartitionKey derives the cache partition for a set of search terms. Order,
// case, surrounding whitespace and duplicates do not change the key.
func PartitionKey(terms []string) string {
	return strings.Join(NormalizeTerms(terms), "|")
}

// NormalizeTerms returns the distinct, normalized, sorted non-empty terms.
func NormalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))
	for _, t := range terms {
		t = NormalizeTerm(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		normalized = append(normalized, t)
	}
	sort.Strings(normalized)
	return normalized
}
