package domain

import "time"

// LedgerKind names one of the two notification ledgers.
type LedgerKind string

const (
	LedgerArrival LedgerKind = "arrival"
	LedgerUrgent  LedgerKind = "urgent"
)

// LedgerEntry records the first time a listing was notified for one event class.
type LedgerEntry struct {
	ListingID        string    `db:"listing_id" bson:"listing_id"`
	FirstSeenAt      time.Time `db:"first_seen_at" bson:"first_seen_at"`
	Title            string    `db:"title" bson:"title"`
	URL              string    `db:"url" bson:"url"`
	MinutesRemaining *int      `db:"minutes_remaining" bson:"minutes_remaining,omitempty"`
}

func NewLedgerEntry(l *Listing, at time.Time) LedgerEntry {
	return LedgerEntry{
		ListingID:        l.ID,
		FirstSeenAt:      at,
		Title:            l.Title,
		URL:              l.URL,
		MinutesRemaining: l.MinutesRemaining,
	}
}
