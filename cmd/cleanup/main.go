package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/minhtran-dev/blogmedia/internal/config"
	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/staging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("starting cleanup job")
	start := time.Now()

	stager := staging.New(cfg.UploadDir)
	removed, err := stager.Sweep(cfg.StagedFileTTL)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	metrics.StagedFilesSweptTotal.Add(float64(removed))

	log.Info("cleanup completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"staged_files_removed", removed,
		"ttl", cfg.StagedFileTTL.String(),
	)
	return nil
}
