package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/minhtran-dev/blogmedia/internal/config"
	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/media"
	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/queue"
	"github.com/minhtran-dev/blogmedia/internal/storage"
	"github.com/minhtran-dev/blogmedia/internal/store"
	"github.com/minhtran-dev/blogmedia/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("configuration loaded")

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("connecting to database")
	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	posts := store.NewPostgresStore(dbpool)

	backend, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	artifacts := metrics.NewInstrumentedStorage(backend)
	log.Info("artifact storage ready", "backend", cfg.StorageBackend)

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	jobs := queue.NewRedisQueue(redisClient,
		queue.WithMaxAttempts(cfg.MaxAttempts),
		queue.WithBaseDelay(cfg.RetryBaseDelay),
	)
	log.Info("job queue initialized")

	metrics.SetAppInfo("1.0.0", cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	log.Info("registering media processors")
	procRegistry := media.NewRegistry()
	procRegistry.Register(media.NewImageProcessor(media.DefaultConfig()))

	videoProc, err := media.NewVideoProcessor(nil)
	if err != nil {
		log.Warn("video processing disabled", "error", err)
	} else {
		procRegistry.Register(videoProc)
	}
	log.Info("processor registry ready", "kinds", procRegistry.List())

	deps := &worker.Dependencies{
		Store:    posts,
		Storage:  artifacts,
		Registry: procRegistry,
	}

	log.Info("registering job handlers")
	registry := worker.NewRegistry()
	_ = registry.Register(queue.TypeProcessImage, worker.ProcessImageHandler(deps))
	_ = registry.Register(queue.TypeProcessVideo, worker.ProcessVideoHandler(deps))
	_ = registry.Register(queue.TypeCleanupTemp, worker.CleanupTempHandler())

	registry.Use(
		worker.RecoveryMiddleware(),
		worker.LoggingMiddleware(),
		worker.TimeoutMiddleware(cfg.JobTimeout, map[string]time.Duration{
			queue.TypeProcessVideo: cfg.VideoJobTimeout,
		}),
		worker.MetricsMiddleware(metrics.NewPrometheusCollector()),
	)
	log.Info("handlers registered", "types", registry.Types())

	pool := worker.NewPool(jobs, registry,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithShutdownTimeout(30*time.Second),
	)

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "9090"
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	metricsServer := &http.Server{
		Addr:    ":" + metricsPort,
		Handler: metricsMux,
	}

	go func() {
		log.Info("metrics server starting", "port", metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	// Keep the queue depth gauge fresh while the pool runs.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if depth, err := jobs.Depth(ctx); err == nil {
					metrics.SetJobsInQueue("media", depth)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	poolErr := make(chan error, 1)
	go func() {
		log.Info("starting worker pool")
		poolErr <- pool.Start(ctx)
	}()

	select {
	case err := <-poolErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker pool error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := pool.Stop(shutdownCtx); err != nil {
			log.Error("error stopping pool", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}

		cancel()
	}

	log.Info("worker pool stopped gracefully")
	return nil
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageBackend == "minio" {
		s, err := storage.NewMinIOStorage(&storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		return s, nil
	}

	s, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	return s, nil
}
