package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"auction_watcher/internal/domain"
)

type fakeListings struct {
	listings  []domain.Listing
	err       error
	lastTerms []string
}

func (f *fakeListings) GetCurrentListings(_ context.Context, terms []string) ([]domain.Listing, error) {
	f.lastTerms = terms
	return slices.Clone(f.listings), f.err
}

type fakeSync struct {
	forced atomic.Int32
	status domain.Status
}

func (f *fakeSync) ForceSync()            { f.forced.Add(1) }
func (f *fakeSync) Status() domain.Status { return f.status }

type fakeWatch struct {
	cfg domain.WatchConfiguration
	err error
}

func (f *fakeWatch) Snapshot() domain.WatchConfiguration { return f.cfg }

func (f *fakeWatch) AddSearchWord(word string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	word = domain.NormalizeTerm(word)
	if slices.Contains(f.cfg.SearchTerms, word) {
		return false, nil
	}
	f.cfg.SearchTerms = domain.NormalizeTerms(append(f.cfg.SearchTerms, word))
	return true, nil
}

func (f *fakeWatch) RemoveSearchWord(word string) (bool, error) {
	i := slices.Index(f.cfg.SearchTerms, domain.NormalizeTerm(word))
	if i < 0 {
		return false, f.err
	}
	f.cfg.SearchTerms = slices.Delete(f.cfg.SearchTerms, i, i+1)
	return true, f.err
}

func (f *fakeWatch) ClearSearchWords() error {
	f.cfg.SearchTerms = nil
	return f.err
}

func (f *fakeWatch) AddBlacklisted(id string) (bool, error) {
	if slices.Contains(f.cfg.Blacklist, id) {
		return false, f.err
	}
	f.cfg.Blacklist = append(f.cfg.Blacklist, id)
	return true, f.err
}

func (f *fakeWatch) RemoveBlacklisted(id string) (bool, error) {
	i := slices.Index(f.cfg.Blacklist, id)
	if i < 0 {
		return false, f.err
	}
	f.cfg.Blacklist = slices.Delete(f.cfg.Blacklist, i, i+1)
	return true, f.err
}

type fakeCache struct {
	stats domain.CacheStats
}

func (f *fakeCache) Stats(context.Context) (domain.CacheStats, error) { return f.stats, nil }

type fakeLedgers map[domain.LedgerKind]int

func (f fakeLedgers) Count(kind domain.LedgerKind) int { return f[kind] }

func minutes(n int) *int { return &n }

type RouterTestSuite struct {
	suite.Suite
	listings *fakeListings
	sync     *fakeSync
	watch    *fakeWatch
	router   *gin.Engine
}

func (s *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *RouterTestSuite) SetupTest() {
	s.listings = &fakeListings{}
	s.sync = &fakeSync{}
	s.watch = &fakeWatch{cfg: domain.WatchConfiguration{SearchTerms: []string{"gitarr"}}}

	s.router = NewRouter(Deps{
		Listings: s.listings,
		Sync:     s.sync,
		Watch:    s.watch,
		Cache:    &fakeCache{stats: domain.CacheStats{Partitions: 1, ValidPartitions: 1, Listings: 3}},
		Ledgers:  fakeLedgers{domain.LedgerArrival: 5, domain.LedgerUrgent: 2},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterTestSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *RouterTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "")

	s.Equal(http.StatusOK, w.Code)
	s.Equal("healthy", s.decode(w)["status"])
}

func (s *RouterTestSuite) TestMetrics() {
	s.do(http.MethodGet, "/health", "")
	w := s.do(http.MethodGet, "/metrics", "")

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "http_requests_total")
}

func (s *RouterTestSuite) TestListings_SortedAndFiltered() {
	s.watch.cfg.Blacklist = []string{"hidden"}
	s.listings.listings = []domain.Listing{
		{ID: "unknown", TimeLeftText: "snart"},
		{ID: "later", MinutesRemaining: minutes(300)},
		{ID: "hidden", MinutesRemaining: minutes(1)},
		{ID: "soon", MinutesRemaining: minutes(5)},
	}

	w := s.do(http.MethodGet, "/api/listings", "")
	s.Require().Equal(http.StatusOK, w.Code)

	var body struct {
		SearchWords []string         `json:"search_words"`
		Count       int              `json:"count"`
		Listings    []domain.Listing `json:"listings"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))

	s.Equal([]string{"gitarr"}, body.SearchWords)
	s.Equal(3, body.Count)
	ids := []string{body.Listings[0].ID, body.Listings[1].ID, body.Listings[2].ID}
	s.Equal([]string{"soon", "later", "unknown"}, ids)
}

func (s *RouterTestSuite) TestListings_QueryOverridesWatchList() {
	w := s.do(http.MethodGet, "/api/listings?q=Trumset,%20gitarr", "")

	s.Equal(http.StatusOK, w.Code)
	s.Equal([]string{"gitarr", "trumset"}, s.listings.lastTerms)
}

func (s *RouterTestSuite) TestListings_ReadError() {
	s.listings.err = errors.New("database down")

	w := s.do(http.MethodGet, "/api/listings", "")

	s.Equal(http.StatusInternalServerError, w.Code)
}

func (s *RouterTestSuite) TestFeed() {
	s.listings.listings = []domain.Listing{{ID: "840444", Title: "Gitarr", URL: "https://example.test/840444"}}

	w := s.do(http.MethodGet, "/api/listings/feed", "")

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "application/atom+xml")
	s.Contains(w.Body.String(), "listing:840444")
}

func (s *RouterTestSuite) TestStatus() {
	s.sync.status = domain.Status{Running: true, State: domain.StateIdle, Interval: time.Hour}

	w := s.do(http.MethodGet, "/api/status", "")
	s.Require().Equal(http.StatusOK, w.Code)

	body := s.decode(w)
	worker := body["worker"].(map[string]any)
	s.Equal(true, worker["running"])
	s.Equal("idle", worker["state"])
	ledgers := body["ledgers"].(map[string]any)
	s.Equal(float64(5), ledgers["arrival"])
	s.Equal(float64(2), ledgers["urgent"])
	cache := body["cache"].(map[string]any)
	s.Equal(float64(3), cache["listings"])
}

func (s *RouterTestSuite) TestForceSync() {
	w := s.do(http.MethodPost, "/api/sync", "")

	s.Equal(http.StatusAccepted, w.Code)
	s.Equal(int32(1), s.sync.forced.Load())
}

func (s *RouterTestSuite) TestSearchWords_Lifecycle() {
	w := s.do(http.MethodPost, "/api/search-words", `{"word":" Trumset "}`)
	s.Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/search-words", `{"word":"trumset"}`)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(false, s.decode(w)["added"])

	w = s.do(http.MethodGet, "/api/search-words", "")
	s.Equal([]any{"gitarr", "trumset"}, s.decode(w)["search_words"])

	w = s.do(http.MethodDelete, "/api/search-words/trumset", "")
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/api/search-words/trumset", "")
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/api/search-words", "")
	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.watch.cfg.SearchTerms)
}

func (s *RouterTestSuite) TestSearchWords_Validation() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/search-words", `{}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/search-words", `{"word":"   "}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/search-words", `not json`).Code)
}

func (s *RouterTestSuite) TestSearchWords_StoreError() {
	s.watch.err = errors.New("disk full")

	w := s.do(http.MethodPost, "/api/search-words", `{"word":"bas"}`)

	s.Equal(http.StatusInternalServerError, w.Code)
}

func (s *RouterTestSuite) TestBlacklist_Lifecycle() {
	w := s.do(http.MethodPost, "/api/blacklist", `{"id":"840444"}`)
	s.Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/api/blacklist", "")
	s.Equal([]any{"840444"}, s.decode(w)["blacklisted_ids"])

	w = s.do(http.MethodDelete, "/api/blacklist/840444", "")
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/api/blacklist/840444", "")
	s.Equal(http.StatusNotFound, w.Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/blacklist", `{"id":""}`).Code)
}

func TestByEnding(t *testing.T) {
	listings := []domain.Listing{
		{ID: "nil-a"},
		{ID: "ten", MinutesRemaining: minutes(10)},
		{ID: "nil-b"},
		{ID: "one", MinutesRemaining: minutes(1)},
	}

	slices.SortStableFunc(listings, byEnding)

	var ids []string
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	require.Equal(t, []string{"one", "ten", "nil-a", "nil-b"}, ids)
	assert.Len(t, ids, 4)
}
