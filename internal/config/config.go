package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	// Upload staging
	UploadDir      string
	MaxUploadSize  int64
	MaxUploadFiles int

	// Artifact storage: "local" or "minio"
	StorageBackend string
	StorageDir     string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	// Worker & queue
	WorkerConcurrency int
	JobTimeout        time.Duration
	VideoJobTimeout   time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration

	// Staged files older than this are swept by cmd/cleanup
	StagedFileTTL time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 100*1024*1024)
	cfg.MaxUploadFiles = getEnvInt("MAX_UPLOAD_FILES", 5)

	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", "local")
	cfg.StorageDir = getEnvString("STORAGE_DIR", cfg.UploadDir)

	if cfg.StorageBackend == "minio" {
		cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
		if cfg.MinIOEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
		cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
		if cfg.MinIOAccessKey == "" {
			return nil, fmt.Errorf("MINIO_ACCESS_KEY is required when STORAGE_BACKEND=minio")
		}
		cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
		if cfg.MinIOSecretKey == "" {
			return nil, fmt.Errorf("MINIO_SECRET_KEY is required when STORAGE_BACKEND=minio")
		}
	}
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "media")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.VideoJobTimeout, err = getEnvDuration("VIDEO_JOB_TIMEOUT", "30m")
	if err != nil {
		return nil, fmt.Errorf("invalid VIDEO_JOB_TIMEOUT: %w", err)
	}
	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", 3)
	cfg.RetryBaseDelay, err = getEnvDuration("RETRY_BASE_DELAY", "2s")
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_BASE_DELAY: %w", err)
	}

	cfg.StagedFileTTL, err = getEnvDuration("STAGED_FILE_TTL", "24h")
	if err != nil {
		return nil, fmt.Errorf("invalid STAGED_FILE_TTL: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MaxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.MaxUploadSize)
	}

	if c.MaxUploadFiles < 1 {
		return fmt.Errorf("invalid max upload files: %d", c.MaxUploadFiles)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("invalid max attempts: %d", c.MaxAttempts)
	}

	if c.StorageBackend != "local" && c.StorageBackend != "minio" {
		return fmt.Errorf("invalid storage backend: %s", c.StorageBackend)
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}
