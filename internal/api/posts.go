package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/minhtran-dev/blogmedia/internal/apperror"
	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/store"
	"github.com/minhtran-dev/blogmedia/internal/worker"
)

// allowedTypes maps accepted MIME types to their media kind.
var allowedTypes = map[string]store.MediaKind{
	"image/jpeg":      store.KindImage,
	"image/jpg":       store.KindImage,
	"image/png":       store.KindImage,
	"image/gif":       store.KindImage,
	"image/webp":      store.KindImage,
	"video/mp4":       store.KindVideo,
	"video/x-msvideo": store.KindVideo,
	"video/avi":       store.KindVideo,
	"video/quicktime": store.KindVideo,
	"video/x-ms-wmv":  store.KindVideo,
}

type createPostResponse struct {
	*store.Post
	MediaDegraded bool `json:"media_degraded,omitempty"`
}

func createPostHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrFileTooLarge))
			return
		}

		title := strings.TrimSpace(r.FormValue("title"))
		content := strings.TrimSpace(r.FormValue("content"))
		author := strings.TrimSpace(r.FormValue("author"))
		if title == "" || content == "" {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(nil, "missing_fields",
				"Title and content are required", http.StatusBadRequest))
			return
		}

		var files []*multipart.FileHeader
		if r.MultipartForm != nil {
			files = r.MultipartForm.File["media"]
		}
		if len(files) > cfg.MaxUploadFiles {
			apperror.WriteJSON(w, r, apperror.ErrTooManyFiles)
			return
		}

		// Validate every file before staging any of them so a bad file
		// rejects the whole request without side effects.
		kinds := make([]store.MediaKind, len(files))
		for i, fh := range files {
			if fh.Size > cfg.MaxUploadSize {
				apperror.WriteJSON(w, r, apperror.ErrFileTooLarge)
				return
			}
			kind, ok := allowedTypes[normalizeContentType(fh)]
			if !ok {
				apperror.WriteJSON(w, r, apperror.ErrInvalidFileType)
				return
			}
			kinds[i] = kind
		}

		slots := make([]store.MediaSlot, 0, len(files))
		staged := make([]string, 0, len(files))
		cleanup := func() {
			for _, path := range staged {
				if err := cfg.Stager.Remove(path); err != nil {
					log.Warn("failed to remove staged file", "path", path, "error", err)
				}
			}
		}

		for i, fh := range files {
			f, err := fh.Open()
			if err != nil {
				cleanup()
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
				return
			}

			sf, err := cfg.Stager.Save(f, fh.Filename)
			_ = f.Close()
			if err != nil {
				cleanup()
				metrics.RecordMediaUpload(string(kinds[i]), "error", 0)
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
				return
			}
			staged = append(staged, sf.Path)
			metrics.RecordMediaUpload(string(kinds[i]), "success", sf.Size)

			slots = append(slots, store.MediaSlot{
				Kind:         kinds[i],
				OriginalName: fh.Filename,
				StagedPath:   sf.Path,
				SizeBytes:    sf.Size,
				MimeType:     normalizeContentType(fh),
				Status:       store.SlotUploading,
			})
		}

		post := &store.Post{
			Title:   title,
			Content: content,
			Author:  author,
			Media:   slots,
		}
		if err := cfg.Store.CreatePost(r.Context(), post); err != nil {
			cleanup()
			log.Error("failed to create post", "error", err)
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}

		log = log.With("post_id", post.ID.String())
		log.Info("post created", "media_count", len(slots))

		// Enqueue one job per slot, in slot order. A queue outage does
		// not fail the request: affected slots are marked failed and the
		// response says so.
		degraded := false
		for i, slot := range post.Media {
			j, err := worker.EnqueueMediaJob(r.Context(), cfg.Queue, slot.Kind, &worker.MediaJobPayload{
				PostID:     post.ID,
				SlotIndex:  i,
				StagedPath: slot.StagedPath,
				Filename:   stagedFilename(slot.StagedPath),
			})
			if err != nil {
				degraded = true
				log.Error("failed to enqueue media job", "slot_index", i, "error", err)
				if uerr := cfg.Store.UpdateSlot(r.Context(), post.ID, i, store.SlotUpdate{
					Status: store.StatusPtr(store.SlotFailed),
				}); uerr != nil {
					log.Error("failed to mark slot failed", "slot_index", i, "error", uerr)
				}
				post.Media[i].Status = store.SlotFailed
				if rerr := cfg.Stager.Remove(slot.StagedPath); rerr != nil {
					log.Warn("failed to remove staged file", "path", slot.StagedPath, "error", rerr)
				}
				continue
			}
			log.Info("media job enqueued", "job_id", j.ID, "job_type", j.Type, "slot_index", i)
		}

		writeJSON(w, http.StatusCreated, createPostResponse{Post: post, MediaDegraded: degraded})
	}
}

type updatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// updatePostHandler edits a post's text. Omitted fields keep their
// current value; media slots are never touched, so an edit racing a
// worker's slot update cannot clobber it.
func updatePostHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}

		var req updatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrBadRequest))
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

		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = post.Title
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			content = post.Content
		}

		if err := cfg.Store.UpdatePostText(r.Context(), id, title, content); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apperror.WriteJSON(w, r, apperror.ErrNotFound)
				return
			}
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}

		updated, err := cfg.Store.GetPost(r.Context(), id)
		if err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func listPostsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := cfg.Store.ListPosts(r.Context())
		if err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func getPostHandler(cfg *Config) http.HandlerFunc {
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
		writeJSON(w, http.StatusOK, post)
	}
}

func deletePostHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}

		post, err := cfg.Store.DeletePost(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apperror.WriteJSON(w, r, apperror.ErrNotFound)
				return
			}
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}

		// Artifact removal is best effort. The post row is gone either
		// way; leftovers are swept by the cleanup job.
		for _, slot := range post.Media {
			if slot.FinalPath != "" {
				if derr := cfg.Storage.Delete(r.Context(), slot.FinalPath); derr != nil {
					log.Warn("failed to delete artifact", "key", slot.FinalPath, "error", derr)
				}
			}
			if slot.ThumbnailName != "" {
				key := "thumbnails/" + slot.ThumbnailName
				if derr := cfg.Storage.Delete(r.Context(), key); derr != nil {
					log.Warn("failed to delete artifact", "key", key, "error", derr)
				}
			}
			if slot.StagedPath != "" {
				if rerr := cfg.Stager.Remove(slot.StagedPath); rerr != nil {
					log.Warn("failed to remove staged file", "path", slot.StagedPath, "error", rerr)
				}
			}
		}

		log.Info("post deleted", "post_id", id.String(), "media_count", len(post.Media))
		w.WriteHeader(http.StatusNoContent)
	}
}

func normalizeContentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// stagedFilename extracts the on-disk name from a staged path.
func stagedFilename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
