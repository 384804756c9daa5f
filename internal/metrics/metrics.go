package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code", "service"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "service"},
	)

	// Sync pass metrics
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_sync_passes_total",
			Help: "Total number of synchronization passes by result",
		},
		[]string{"result"},
	)

	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auction_sync_pass_duration_seconds",
			Help:    "Duration of synchronization passes in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ListingsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_listings_fetched_total",
			Help: "Total number of raw listings returned by the scraper",
		},
	)

	FetchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_fetch_errors_total",
			Help: "Total number of failed scraper requests",
		},
	)

	CachedListings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_cached_listings",
			Help: "Number of listings written by the last successful pass",
		},
	)

	ListingsRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_closed_listings_removed_total",
			Help: "Total number of closed listings removed from the cache",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_notifications_total",
			Help: "Total number of notification attempts by kind and status",
		},
		[]string{"kind", "status"},
	)

	ForceSyncRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_force_sync_requests_total",
			Help: "Total number of force-sync requests, coalesced or not",
		},
	)

	// Application health metrics
	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "application_info",
			Help: "Application information",
		},
		[]string{"service", "version", "storage"},
	)
)

// Initialize metrics with default values
func Init(serviceName, version, storage string) {
	ApplicationInfo.WithLabelValues(serviceName, version, storage).Set(1)
}
