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
	"github.com/redis/go-redis/v9"

	"github.com/minhtran-dev/blogmedia/internal/api"
	"github.com/minhtran-dev/blogmedia/internal/config"
	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/queue"
	"github.com/minhtran-dev/blogmedia/internal/staging"
	"github.com/minhtran-dev/blogmedia/internal/storage"
	"github.com/minhtran-dev/blogmedia/internal/store"
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

	ctx := context.Background()

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	posts := store.NewPostgresStore(pool)
	if err := posts.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

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

	stager := staging.New(cfg.UploadDir)
	if err := stager.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to prepare staging dir: %w", err)
	}

	metrics.SetAppInfo("1.0.0", cfg.Environment, "server")

	handler := api.NewRouter(&api.Config{
		Store:          posts,
		Storage:        artifacts,
		Queue:          jobs,
		Stager:         stager,
		MaxUploadSize:  cfg.MaxUploadSize,
		MaxUploadFiles: cfg.MaxUploadFiles,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
			_ = server.Close()
		}
	}

	log.Info("server stopped")
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
