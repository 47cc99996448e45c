// Package main wires together the stock monitoring service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/api"
	archivegcs "github.com/cardstock/stockwatch/internal/archive/gcs"
	archivelocal "github.com/cardstock/stockwatch/internal/archive/local"
	archivemem "github.com/cardstock/stockwatch/internal/archive/memory"
	"github.com/cardstock/stockwatch/internal/clock/system"
	"github.com/cardstock/stockwatch/internal/config"
	"github.com/cardstock/stockwatch/internal/fetch"
	"github.com/cardstock/stockwatch/internal/hydrate"
	"github.com/cardstock/stockwatch/internal/id/uuid"
	"github.com/cardstock/stockwatch/internal/logging"
	"github.com/cardstock/stockwatch/internal/metrics"
	"github.com/cardstock/stockwatch/internal/monitor"
	"github.com/cardstock/stockwatch/internal/normalize"
	publishermem "github.com/cardstock/stockwatch/internal/publisher/memory"
	publisherps "github.com/cardstock/stockwatch/internal/publisher/pubsub"
	"github.com/cardstock/stockwatch/internal/retailer"
	"github.com/cardstock/stockwatch/internal/runner"
	storagemem "github.com/cardstock/stockwatch/internal/storage/memory"
	storagepg "github.com/cardstock/stockwatch/internal/storage/postgres"
	"github.com/cardstock/stockwatch/internal/throttle"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	ids := uuid.NewGenerator()

	var (
		store monitor.Store
		ready api.ReadyFunc
	)
	if cfg.DB.DSN != "" {
		pgStore, err := storagepg.New(ctx, storagepg.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}, ids)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
		ready = pgStore.Ping
	} else {
		logger.Warn("db.dsn not set, using in-memory store")
		store = storagemem.New()
	}

	var locker monitor.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		locker = throttle.NewRedisLocker(client)
	} else {
		logger.Warn("redis.addr not set, throttle lock disabled")
	}
	throttler := throttle.New(locker, cfg.LockTTL(), cfg.Throttle.Strict, logger.Named("throttle"))

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Monitor.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, clock)

	var renderer monitor.Renderer = hydrate.Noop{}
	if cfg.Hydrate.Enabled {
		chromeRenderer, err := hydrate.NewRenderer(hydrate.Config{
			MaxParallel:       cfg.Hydrate.MaxParallel,
			UserAgent:         cfg.Monitor.UserAgent,
			NavigationTimeout: time.Duration(cfg.Hydrate.NavTimeoutSeconds) * time.Second,
			WaitTimeout:       time.Duration(cfg.Hydrate.WaitTimeoutSeconds) * time.Second,
		}, clock)
		if err != nil {
			logger.Warn("headless renderer init failed, hydration disabled", zap.Error(err))
		} else {
			defer chromeRenderer.Close()
			renderer = chromeRenderer
		}
	}
	escalator := hydrate.NewEscalator(renderer, cfg.Hydrate.MaxRetries, logger.Named("hydrate"))

	registry := retailer.NewRegistry(retailer.Deps{
		Fetcher:   fetcher,
		Escalator: escalator,
		Logger:    logger.Named("retailer"),
	})

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}
	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	orchestrator, err := runner.New(runner.Config{
		Concurrency:   cfg.Monitor.Concurrency,
		Postcode:      cfg.Monitor.Postcode,
		Topic:         cfg.Events.Topic,
		ArchivePrefix: cfg.Archive.Prefix,
	}, runner.Options{
		Store:      store,
		Adapter:    registry,
		Normalizer: normalize.New(store, clock, ids, logger.Named("normalize")),
		Throttle:   throttler,
		Archive:    archive,
		Publisher:  publisher,
		Clock:      clock,
		Logger:     logger.Named("runner"),
	})
	if err != nil {
		logger.Fatal("runner init failed", zap.Error(err))
	}

	apiServer := api.NewServer(orchestrator, ready, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (monitor.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "":
		return nil, nil
	case "memory":
		return archivemem.New(), nil
	case "local":
		return archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.BaseDir})
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		logger.Info("archiving evidence to gcs", zap.String("bucket", cfg.Archive.Bucket))
		return archivegcs.New(client, archivegcs.Config{Bucket: cfg.Archive.Bucket})
	default:
		return nil, fmt.Errorf("unknown archive.provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (monitor.Publisher, func(), error) {
	if !cfg.Events.Enabled {
		return nil, func() {}, nil
	}
	if cfg.Events.ProjectID == "" {
		logger.Warn("events enabled without project id, using memory publisher")
		return publishermem.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := publisherps.New(client, cfg.Events.Topic)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("publishing stock events", zap.String("topic", cfg.Events.Topic))
	closeFn := func() {
		pub.Close()
		_ = client.Close()
	}
	return pub, closeFn, nil
}
