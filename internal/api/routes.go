package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/queue"
	"github.com/minhtran-dev/blogmedia/internal/staging"
	"github.com/minhtran-dev/blogmedia/internal/storage"
	"github.com/minhtran-dev/blogmedia/internal/store"
)

type Config struct {
	Store          store.Store
	Storage        storage.Storage
	Queue          queue.Queue
	Stager         *staging.Stager
	MaxUploadSize  int64
	MaxUploadFiles int
}

func NewRouter(cfg *Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthzHandler(cfg))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/posts", createPostHandler(cfg))
	mux.HandleFunc("GET /api/posts", listPostsHandler(cfg))
	mux.HandleFunc("GET /api/posts/{id}", getPostHandler(cfg))
	mux.HandleFunc("PUT /api/posts/{id}", updatePostHandler(cfg))
	mux.HandleFunc("DELETE /api/posts/{id}", deletePostHandler(cfg))
	mux.HandleFunc("GET /api/posts/{id}/status", statusHandler(cfg))
	mux.HandleFunc("GET /api/posts/media/{category}/{filename}", mediaHandler(cfg))

	return RequestIDMiddleware(LoggingMiddleware(metrics.HTTPMetricsMiddleware(mux)))
}

func healthzHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if cfg.Storage != nil {
			if err := cfg.Storage.HealthCheck(r.Context()); err != nil {
				logger.FromContext(r.Context()).Error("storage health check failed", "error", err)
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
