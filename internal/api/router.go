// Package api exposes listings, worker status and watch-list editing over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auction_watcher/internal/domain"
)

const ServiceName = "auction-watcher"

type ListingReader interface {
	GetCurrentListings(ctx context.Context, terms []string) ([]domain.Listing, error)
}

type SyncController interface {
	ForceSync()
	Status() domain.Status
}

type WatchEditor interface {
	Snapshot() domain.WatchConfiguration
	AddSearchWord(word string) (bool, error)
	RemoveSearchWord(word string) (bool, error)
	ClearSearchWords() error
	AddBlacklisted(id string) (bool, error)
	RemoveBlacklisted(id string) (bool, error)
}

type CacheStatter interface {
	Stats(ctx context.Context) (domain.CacheStats, error)
}

type LedgerCounter interface {
	Count(kind domain.LedgerKind) int
}

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Listings ListingReader
	Sync     SyncController
	Watch    WatchEditor
	Cache    CacheStatter
	Ledgers  LedgerCounter
}

func NewRouter(deps Deps, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(PrometheusMiddleware(ServiceName))

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(config))

	h := &handler{deps: deps, logger: logger}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": ServiceName,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/listings", h.getListings)
		api.GET("/listings/feed", h.getFeed)
		api.GET("/status", h.getStatus)
		api.POST("/sync", h.forceSync)

		api.GET("/search-words", h.getSearchWords)
		api.POST("/search-words", h.addSearchWord)
		api.DELETE("/search-words", h.clearSearchWords)
		api.DELETE("/search-words/:word", h.removeSearchWord)

		api.GET("/blacklist", h.getBlacklist)
		api.POST("/blacklist", h.addBlacklisted)
		api.DELETE("/blacklist/:id", h.removeBlacklisted)
	}

	return r
}
