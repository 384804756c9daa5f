package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"auction_watcher/internal/api"
	"auction_watcher/internal/cleanup"
	"auction_watcher/internal/config"
	"auction_watcher/internal/dedup"
	"auction_watcher/internal/domain"
	"auction_watcher/internal/metrics"
	"auction_watcher/internal/publisher"
	"auction_watcher/internal/scheduler"
	"auction_watcher/internal/service"
	"auction_watcher/internal/source/scraper"
	"auction_watcher/internal/storage/mongo"
	"auction_watcher/internal/storage/postgres"
	"auction_watcher/internal/trigger"
	"auction_watcher/internal/watch"
)

var version = "dev"

type storage struct {
	cache  service.CacheStore
	ledger dedup.LedgerStore
	close  func()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)
	metrics.Init(api.ServiceName, version, cfg.Storage.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	// The ledgers must be loaded before the first pass, otherwise a restart
	// would announce everything again.
	tracker := dedup.NewTracker(store.ledger, logger)
	if err := tracker.Load(ctx); err != nil {
		logger.Error("failed to load notification ledgers", "error", err)
		os.Exit(1)
	}

	watchStore, err := watch.Open(cfg.Watch.File, logger)
	if err != nil {
		logger.Error("failed to open watch file", "error", err)
		os.Exit(1)
	}

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:               cfg.RabbitMQ.URL,
		Exchange:          cfg.RabbitMQ.Exchange,
		RoutingKeyArrival: cfg.RabbitMQ.RoutingKeyArrival,
		RoutingKeyUrgent:  cfg.RabbitMQ.RoutingKeyUrgent,
		QueueName:         cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	source := scraper.New(scraper.Config{
		BaseURL:        cfg.Scraper.BaseURL,
		Timeout:        cfg.Scraper.Timeout,
		MaxPages:       cfg.Scraper.MaxPages,
		MaxAttempts:    cfg.Scraper.Retry.MaxAttempts,
		InitialBackoff: cfg.Scraper.Retry.InitialBackoff,
		MaxBackoff:     cfg.Scraper.Retry.MaxBackoff,
	}, logger)

	cleaner := cleanup.New(store.cache, logger)

	syncService := service.NewSyncService(
		source,
		store.cache,
		tracker,
		cleaner,
		watchStore,
		rabbitMQ,
		logger,
		cfg.Sync,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, logger)
	syncService.OnStateChange(sched.ObserveState)

	trig := trigger.New(store.cache, sched, logger)
	watchStore.OnChange(trig.OnWatchConfigurationChanged)

	if cfg.NATS.URL != "" {
		bridge, closeNATS, err := startNATSBridge(cfg.NATS, watchStore, trig, logger)
		if err != nil {
			logger.Warn("nats bridge disabled", "error", err)
		} else {
			defer closeNATS()
			watchStore.OnChange(bridge.Announce)
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Listings: service.NewListingService(store.cache, cleaner, logger),
		Sync:     sched,
		Watch:    watchStore,
		Cache:    store.cache,
		Ledgers:  tracker,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting auction watcher",
		"source", source.Name(),
		"storage", cfg.Storage.Driver,
		"interval", cfg.Sync.Interval,
		"urgent_threshold_minutes", cfg.Sync.UrgentThresholdMinutes,
	)

	schedErr := sched.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	trig.Wait()

	if schedErr != nil && !errors.Is(schedErr, context.Canceled) {
		logger.Error("scheduler error", "error", schedErr)
		os.Exit(1)
	}
	logger.Info("auction watcher stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		client, db, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("connected to mongodb", "database", cfg.Mongo.Database)

		return &storage{
			cache:  mongo.NewCacheStore(db),
			ledger: mongo.NewLedgerStore(db),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Warn("mongodb disconnect failed", "error", err)
				}
			},
		}, nil

	case config.DriverPostgres:
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to database")

		return &storage{
			cache:  postgres.NewListingCacheStore(db, postgres.NewTransactionManager(db)),
			ledger: postgres.NewLedgerStore(db),
			close:  func() { db.Close() },
		}, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// startNATSBridge shares watch-list edits with other processes using the same
// watch file. A remote edit reloads the file and then behaves like a local one.
func startNATSBridge(
	cfg config.NATSConfig,
	watchStore *watch.Store,
	trig *trigger.Trigger,
	logger *slog.Logger,
) (*trigger.NATSBridge, func(), error) {
	nc, err := nats.Connect(cfg.URL, nats.Name(api.ServiceName))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	bridge := trigger.NewNATSBridge(nc, cfg.Subject, func(domain.WatchConfiguration) {
		if err := watchStore.Reload(); err != nil {
			logger.Error("failed to reload watch file", "error", err)
			return
		}
		trig.OnWatchConfigurationChanged(watchStore.Snapshot())
	}, logger)

	if err := bridge.Start(); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return bridge, func() {
		bridge.Close()
		nc.Close()
	}, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
