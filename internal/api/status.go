package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/minhtran-dev/blogmedia/internal/apperror"
	"github.com/minhtran-dev/blogmedia/internal/store"
)

// statusHandler serves the processing status projection clients poll
// while media jobs run.
func statusHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}

		post, err := cfg.Store.GetPost(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apperror.WriteJSON(w, r, apperror.ErrNotFound)
				return
			}
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}

		writeJSON(w, http.StatusOK, store.ProjectStatus(post))
	}
}
