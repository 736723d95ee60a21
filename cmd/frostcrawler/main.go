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

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/api"
	"github.com/verkehr-aachen/frost-crawler/internal/archive"
	"github.com/verkehr-aachen/frost-crawler/internal/config"
	"github.com/verkehr-aachen/frost-crawler/internal/discovery"
	"github.com/verkehr-aachen/frost-crawler/internal/dispatcher"
	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/id/uuid"
	"github.com/verkehr-aachen/frost-crawler/internal/ingest"
	"github.com/verkehr-aachen/frost-crawler/internal/logging"
	"github.com/verkehr-aachen/frost-crawler/internal/metrics"
	"github.com/verkehr-aachen/frost-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/verkehr-aachen/frost-crawler/internal/publisher/pubsub"
	"github.com/verkehr-aachen/frost-crawler/internal/service"
	"github.com/verkehr-aachen/frost-crawler/internal/storage"
	"github.com/verkehr-aachen/frost-crawler/internal/storage/gcs"
	"github.com/verkehr-aachen/frost-crawler/internal/storage/local"
	"github.com/verkehr-aachen/frost-crawler/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("frost crawler stopped with error", zap.Error(err))
	}
	if syncErr := logger.Sync(); syncErr != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()

	startTime, err := cfg.StartTime()
	if err != nil {
		return err
	}

	db, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.ConnString(),
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("schema ensured")
	}

	recorder, closeArchive, err := newArchive(ctx, cfg.Archive, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	client, err := frost.New(frost.Config{
		BaseURL:      cfg.Frost.BaseURL,
		Username:     cfg.Frost.Username,
		Password:     cfg.Frost.Password,
		UserAgent:    cfg.Frost.UserAgent,
		PageSize:     cfg.Frost.PageSize,
		Timeout:      cfg.RequestTimeout(),
		MaxBodyBytes: cfg.Frost.MaxBodyBytes,
		Retry: frost.NewExponentialRetryPolicy(
			cfg.HTTP.MaxRetries+1,
			time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
		),
		Limiter:  ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RequestsPerSecond, Burst: cfg.HTTP.Burst}),
		Recorder: recorder,
	}, logger.Named("frost"))
	if err != nil {
		return fmt.Errorf("frost client: %w", err)
	}

	controller := ingest.New(client, db, ingest.Config{
		StartTime:     startTime,
		CommitTimeout: cfg.Crawl.CommitTimeout,
	}, logger)

	var opts []service.Option
	if cfg.PubSub.TopicName != "" {
		publisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("pubsub close failed", zap.Error(err))
			}
		}()
		opts = append(opts, service.WithPublisher(publisher))
	}

	svc := service.New(
		discovery.New(client, db, nil, logger),
		db,
		dispatcher.New(cfg.Crawl.Workers, controller, logger),
		uuid.New(),
		service.Config{
			Interval:      cfg.Crawl.Interval,
			RetryInterval: cfg.Crawl.RetryInterval,
			Topic:         cfg.PubSub.TopicName,
		},
		logger,
		opts...,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(db, svc, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	logger.Info("crawl loop started",
		zap.String("frost_base_url", cfg.Frost.BaseURL),
		zap.Duration("interval", cfg.Crawl.Interval),
		zap.Int("workers", cfg.Crawl.Workers),
	)
	runErr := svc.Run(ctx)
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return runErr
}

// newArchive picks the configured blob backend. With neither a bucket nor a
// directory set, archiving is off and the returned recorder is nil.
func newArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (frost.Recorder, func(), error) {
	var (
		blobs   storage.BlobStore
		closeFn = func() {}
	)
	switch {
	case cfg.GCSBucket != "":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Warn("gcs client close failed", zap.Error(err))
			}
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		blobs = store
	case cfg.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		blobs = store
	default:
		return nil, closeFn, nil
	}

	a, err := archive.New(blobs, cfg.Prefix, nil, logger.Named("archive"))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return a, closeFn, nil
}
