package api

import (
	"cmp"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"auction_watcher/internal/domain"
	"auction_watcher/internal/feed"
)

type handler struct {
	deps   Deps
	logger *slog.Logger
}

// requestedTerms reads ?q=a,b and falls back to the configured watch list.
func (h *handler) requestedTerms(c *gin.Context) []string {
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		return domain.NormalizeTerms(strings.Split(q, ","))
	}
	return domain.NormalizeTerms(h.deps.Watch.Snapshot().SearchTerms)
}

// visibleListings returns the cached listings for the request, minus
// blacklisted ids, soonest ending first.
func (h *handler) visibleListings(c *gin.Context) ([]string, []domain.Listing, bool) {
	terms := h.requestedTerms(c)

	listings, err := h.deps.Listings.GetCurrentListings(c.Request.Context(), terms)
	if err != nil {
		h.logger.Error("failed to read listings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read listings"})
		return nil, nil, false
	}

	watch := h.deps.Watch.Snapshot()
	listings = slices.DeleteFunc(listings, func(l domain.Listing) bool {
		return watch.IsBlacklisted(l.ID)
	})
	slices.SortStableFunc(listings, byEnding)

	return terms, listings, true
}

func byEnding(a, b domain.Listing) int {
	switch {
	case a.MinutesRemaining == nil && b.MinutesRemaining == nil:
		return 0
	case a.MinutesRemaining == nil:
		return 1
	case b.MinutesRemaining == nil:
		return -1
	}
	return cmp.Compare(*a.MinutesRemaining, *b.MinutesRemaining)
}

func (h *handler) getListings(c *gin.Context) {
	terms, listings, ok := h.visibleListings(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"search_words": terms,
		"count":        len(listings),
		"listings":     listings,
	})
}

func (h *handler) getFeed(c *gin.Context) {
	terms, listings, ok := h.visibleListings(c)
	if !ok {
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	h.logger.Debug("rendering atom feed", "items", len(listings))
	atom, err := feed.Atom(listings, terms, feed.Options{
		Title: "Auction watch: " + strings.Join(terms, ", "),
		Link:  scheme + "://" + c.Request.Host + c.Request.URL.RequestURI(),
	})
	if err != nil {
		h.logger.Error("failed to render feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render feed"})
		return
	}

	c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}

func (h *handler) getStatus(c *gin.Context) {
	stats, err := h.deps.Cache.Stats(c.Request.Context())
	if err != nil {
		h.logger.Warn("failed to read cache stats", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"worker": h.deps.Sync.Status(),
		"cache":  stats,
		"ledgers": gin.H{
			string(domain.LedgerArrival): h.deps.Ledgers.Count(domain.LedgerArrival),
			string(domain.LedgerUrgent):  h.deps.Ledgers.Count(domain.LedgerUrgent),
		},
		"search_words": h.deps.Watch.Snapshot().SearchTerms,
	})
}

func (h *handler) forceSync(c *gin.Context) {
	h.deps.Sync.ForceSync()
	c.JSON(http.StatusAccepted, gin.H{"message": "sync requested"})
}

func (h *handler) getSearchWords(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"search_words": nonNil(h.deps.Watch.Snapshot().SearchTerms)})
}

type searchWordRequest struct {
	Word string `json:"word" binding:"required"`
}

func (h *handler) addSearchWord(c *gin.Context) {
	var req searchWordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Word) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "word is required"})
		return
	}

	added, err := h.deps.Watch.AddSearchWord(req.Word)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added, "search_words": h.deps.Watch.Snapshot().SearchTerms})
}

func (h *handler) removeSearchWord(c *gin.Context) {
	removed, err := h.deps.Watch.RemoveSearchWord(c.Param("word"))
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "search word not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true, "search_words": nonNil(h.deps.Watch.Snapshot().SearchTerms)})
}

func (h *handler) clearSearchWords(c *gin.Context) {
	if err := h.deps.Watch.ClearSearchWords(); err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"search_words": []string{}})
}

func (h *handler) getBlacklist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blacklisted_ids": nonNil(h.deps.Watch.Snapshot().Blacklist)})
}

type blacklistRequest struct {
	ID string `json:"id" binding:"required"`
}

func (h *handler) addBlacklisted(c *gin.Context) {
	var req blacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	added, err := h.deps.Watch.AddBlacklisted(req.ID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added})
}

func (h *handler) removeBlacklisted(c *gin.Context) {
	removed, err := h.deps.Watch.RemoveBlacklisted(c.Param("id"))
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing id not blacklisted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (h *handler) respondMutationError(c *gin.Context, err error) {
	h.logger.Error("watch list update failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update watch list"})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
