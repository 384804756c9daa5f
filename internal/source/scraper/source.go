package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auction_watcher/internal/domain"
)

const SourceName = "auction-scraper"

// Config holds scraper source configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxPages       int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches listings for one search word from the scraping service.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	maxPages       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		maxPages:       cfg.MaxPages,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceName),
	}
}

func (s *Source) Name() string {
	return SourceName
}

// Fetch returns every listing the site reports for term, following pages up
// to the configured limit. A page that fails after all retries fails the fetch.
func (s *Source) Fetch(ctx context.Context, term string) ([]domain.RawListing, error) {
	var all []Listing

	for page := 1; page <= s.maxPages; page++ {
		resp, err := s.fetchPage(ctx, term, page)
		if err != nil {
			return nil, fmt.Errorf("fetch %q page %d: %w", term, page, err)
		}

		all = append(all, resp.Listings...)

		s.logger.Debug("fetched page",
			"search_word", term,
			"page", page,
			"listings", len(resp.Listings),
			"total", len(all),
		)

		if page >= resp.TotalPages {
			break
		}
	}

	return transform(all), nil
}

func (s *Source) fetchPage(ctx context.Context, term string, page int) (*SearchResponse, error) {
	query := url.Values{}
	query.Set("q", term)
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	endpoint := s.baseURL + "/search?" + query.Encode()

	var resp *SearchResponse
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err = s.doRequest(ctx, endpoint)
		if err == nil {
			return resp, nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, endpoint string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "AuctionWatcher/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &searchResp, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func transform(listings []Listing) []domain.RawListing {
	raw := make([]domain.RawListing, 0, len(listings))
	for _, l := range listings {
		raw = append(raw, domain.RawListing{
			ID:           strings.TrimSpace(string(l.ID)),
			Title:        strings.TrimSpace(l.Title),
			Description:  strings.TrimSpace(l.Description),
			Location:     strings.TrimSpace(l.Location),
			CurrentBid:   strings.TrimSpace(l.CurrentBid),
			URL:          l.URL,
			TimeLeftText: strings.TrimSpace(l.TimeLeft),
			ImageURL:     l.ImageURL,
		})
	}
	return raw
}
