// Package feed renders the current listings of a watch list as an Atom feed.
package feed

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"auction_watcher/internal/domain"
)

// Options describes the feed envelope.
type Options struct {
	Title string
	Link  string
	Now   time.Time
}

// Atom builds an Atom document from listings in the order given.
func Atom(listings []domain.Listing, terms []string, opts Options) (string, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	title := opts.Title
	if title == "" {
		title = "Auction watch"
	}

	feed := &feeds.Feed{
		Title:       title,
		Description: "Open auction listings for: " + strings.Join(terms, ", "),
		Link:        &feeds.Link{Href: opts.Link, Rel: "self", Type: "application/atom+xml"},
		Id:          "tag:auction_watcher,2026:" + domain.PartitionKey(terms),
		Created:     now,
		Updated:     now,
	}

	for _, l := range listings {
		item := &feeds.Item{
			Title:       l.Title,
			Link:        &feeds.Link{Href: l.URL, Rel: "alternate", Type: "text/html"},
			Id:          "tag:auction_watcher,2026:listing:" + l.ID,
			Description: describe(l),
			Created:     now,
		}
		if l.ImageRef != "" {
			item.Enclosure = &feeds.Enclosure{Url: l.ImageRef, Type: "image/jpeg", Length: "0"}
		}
		feed.Items = append(feed.Items, item)
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return "", fmt.Errorf("render atom: %w", err)
	}
	return atom, nil
}

func describe(l domain.Listing) string {
	var b strings.Builder
	b.WriteString("<div>")
	if l.CurrentBid != "" {
		fmt.Fprintf(&b, "<p><strong>Bid:</strong> %s</p>", html.EscapeString(l.CurrentBid))
	}
	fmt.Fprintf(&b, "<p><strong>Time left:</strong> %s</p>", html.EscapeString(timeLeft(l)))
	if l.Location != "" {
		fmt.Fprintf(&b, "<p><strong>Location:</strong> %s</p>", html.EscapeString(l.Location))
	}
	if l.Description != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(l.Description))
	}
	fmt.Fprintf(&b, "<p><small>Matched: %s</small></p>", html.EscapeString(strings.Join(l.SearchTerms, ", ")))
	b.WriteString("</div>")
	return b.String()
}

func timeLeft(l domain.Listing) string {
	if l.MinutesRemaining == nil {
		if l.TimeLeftText != "" {
			return l.TimeLeftText
		}
		return "unknown"
	}

	m := *l.MinutesRemaining
	switch {
	case m < 1:
		return "less than a minute"
	case m < 60:
		return fmt.Sprintf("%dm", m)
	case m < 24*60:
		return fmt.Sprintf("%dh %dm", m/60, m%60)
	default:
		return fmt.Sprintf("%dd %dh", m/(24*60), (m%(24*60))/60)
	}
}
