package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/minhtran-dev/blogmedia/internal/apperror"
	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/storage"
)

var mediaCategories = map[string]bool{
	"images":     true,
	"videos":     true,
	"thumbnails": true,
}

// mediaHandler streams a processed artifact from storage.
func mediaHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := r.PathValue("category")
		filename := r.PathValue("filename")

		if !mediaCategories[category] || !validFilename(filename) {
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}

		key := category + "/" + filename
		reader, err := cfg.Storage.Download(r.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				apperror.WriteJSON(w, r, apperror.ErrNotFound)
				return
			}
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}
		defer func() { _ = reader.Close() }()

		contentType := mime.TypeByExtension(filepath.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

		if _, err := io.Copy(w, reader); err != nil {
			logger.FromContext(r.Context()).Warn("failed to stream media", "key", key, "error", err)
		}
	}
}

func validFilename(name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return false
	}
	return true
}
