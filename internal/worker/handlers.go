package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/media"
	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/queue"
	"github.com/minhtran-dev/blogmedia/internal/storage"
	"github.com/minhtran-dev/blogmedia/internal/store"
)

type Dependencies struct {
	Store    store.Store
	Storage  storage.Storage
	Registry *media.Registry
}

// ProcessImageHandler transforms a staged image into its processed
// rendition and thumbnail, uploads both, and finalizes the media slot.
func ProcessImageHandler(deps *Dependencies) Handler {
	return processMediaHandler(deps, store.KindImage, "images")
}

// ProcessVideoHandler transcodes a staged video, extracts a thumbnail
// frame, uploads both, and finalizes the media slot.
func ProcessVideoHandler(deps *Dependencies) Handler {
	return processMediaHandler(deps, store.KindVideo, "videos")
}

func processMediaHandler(deps *Dependencies, kind store.MediaKind, category string) Handler {
	return func(ctx context.Context, j *queue.Job) error {
		log := logger.FromContext(ctx).With("job_id", j.ID, "job_type", j.Type)

		var payload MediaJobPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		if err := payload.Validate(); err != nil {
			log.Error("invalid payload", "error", err)
			return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		log = log.With("post_id", payload.PostID.String(), "slot_index", payload.SlotIndex)

		post, err := deps.Store.GetPost(ctx, payload.PostID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Post deleted while the job was queued. Drop the staged
				// file and consume the job without failing it.
				log.Info("post gone, discarding job")
				removeStaged(log, payload.StagedPath)
				return nil
			}
			log.Error("failed to retrieve post", "error", err)
			return fmt.Errorf("failed to retrieve post: %w", err)
		}

		if payload.SlotIndex >= len(post.Media) {
			log.Warn("slot index out of range, discarding job", "slots", len(post.Media))
			removeStaged(log, payload.StagedPath)
			return nil
		}

		slot := post.Media[payload.SlotIndex]
		if slot.Status == store.SlotProcessed {
			// Redelivered job for a slot that already finished. The
			// artifacts are in place, so there is nothing to redo.
			log.Info("slot already processed, discarding job")
			return nil
		}

		if err := deps.Store.UpdateSlot(ctx, payload.PostID, payload.SlotIndex, store.SlotUpdate{
			Status: store.StatusPtr(store.SlotProcessing),
		}); err != nil {
			log.Error("failed to mark slot processing", "error", err)
			return fmt.Errorf("failed to mark slot processing: %w", err)
		}

		proc, err := deps.Registry.GetOrError(string(kind))
		if err != nil {
			log.Error("processor not found", "kind", kind, "error", err)
			return failSlot(ctx, deps, log, &payload, nil, queue.Permanent(err))
		}

		processStart := time.Now()
		out, err := proc.Process(ctx, payload.StagedPath)
		if err != nil {
			switch {
			case errors.Is(err, media.ErrSourceMissing):
				// The staged file is gone. Retrying cannot bring it
				// back, so fail the slot immediately.
				log.Error("staged file missing", "path", payload.StagedPath)
				return failSlot(ctx, deps, log, &payload, nil, queue.Permanent(err))
			case errors.Is(err, media.ErrUnprocessable):
				log.Error("source not processable", "error", err)
				return failSlot(ctx, deps, log, &payload, nil, queue.Permanent(err))
			default:
				log.Error("processing failed", "error", err)
				return failTransient(ctx, deps, log, j, &payload, nil, fmt.Errorf("processing failed: %w", err))
			}
		}
		log.Debug("media processed", "duration_ms", time.Since(processStart).Milliseconds())
		metrics.RecordJobStage(j.Type, "process", time.Since(processStart).Seconds())

		finalName := "processed_" + payload.Filename
		finalPath := category + "/" + finalName
		thumbName := "thumb_" + thumbFilename(kind, payload.Filename)
		thumbPath := "thumbnails/" + thumbName

		// Keys written so far in this attempt. A terminal failure after a
		// partial upload must delete them: the slot never records a final
		// path, so nothing else could reclaim the objects.
		var uploaded []string

		uploadStart := time.Now()
		if err := deps.Storage.Upload(ctx, finalPath, out.Processed.Data, out.Processed.ContentType, out.Processed.Size); err != nil {
			log.Error("failed to upload processed media", "key", finalPath, "error", err)
			return failTransient(ctx, deps, log, j, &payload, uploaded, fmt.Errorf("failed to upload processed media: %w", err))
		}
		uploaded = append(uploaded, finalPath)
		if err := deps.Storage.Upload(ctx, thumbPath, out.Thumbnail.Data, out.Thumbnail.ContentType, out.Thumbnail.Size); err != nil {
			log.Error("failed to upload thumbnail", "key", thumbPath, "error", err)
			return failTransient(ctx, deps, log, j, &payload, uploaded, fmt.Errorf("failed to upload thumbnail: %w", err))
		}
		uploaded = append(uploaded, thumbPath)
		log.Debug("artifacts uploaded", "duration_ms", time.Since(uploadStart).Milliseconds())
		metrics.RecordJobStage(j.Type, "upload", time.Since(uploadStart).Seconds())

		upd := store.SlotUpdate{
			Status:        store.StatusPtr(store.SlotProcessed),
			FinalName:     store.StrPtr(finalName),
			FinalPath:     store.StrPtr(finalPath),
			ThumbnailName: store.StrPtr(thumbName),
		}
		if kind == store.KindVideo {
			upd.DurationSeconds = store.Float64Ptr(out.DurationSeconds)
		}
		if err := deps.Store.UpdateSlot(ctx, payload.PostID, payload.SlotIndex, upd); err != nil {
			log.Error("failed to finalize slot", "error", err)
			return failTransient(ctx, deps, log, j, &payload, uploaded, fmt.Errorf("failed to finalize slot: %w", err))
		}

		removeStaged(log, payload.StagedPath)
		return nil
	}
}

// CleanupTempHandler deletes a batch of staged files.
func CleanupTempHandler() Handler {
	return func(ctx context.Context, j *queue.Job) error {
		log := logger.FromContext(ctx).With("job_id", j.ID, "job_type", j.Type)

		var payload CleanupPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		removed := 0
		for _, path := range payload.Paths {
			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				log.Warn("failed to remove staged file", "path", path, "error", err)
				continue
			}
			removed++
		}
		log.Info("staged files cleaned", "removed", removed, "requested", len(payload.Paths))
		return nil
	}
}

// failSlot marks the slot failed and returns the permanent error. The
// staged file and any destination objects written during the attempt are
// removed since no further attempt will read them.
func failSlot(ctx context.Context, deps *Dependencies, log *slog.Logger, payload *MediaJobPayload, uploaded []string, err error) error {
	for _, key := range uploaded {
		if derr := deps.Storage.Delete(ctx, key); derr != nil {
			log.Warn("failed to delete partial artifact", "key", key, "error", derr)
		}
	}
	if uerr := deps.Store.UpdateSlot(ctx, payload.PostID, payload.SlotIndex, store.SlotUpdate{
		Status: store.StatusPtr(store.SlotFailed),
	}); uerr != nil {
		log.Error("failed to mark slot failed", "error", uerr)
	}
	removeStaged(log, payload.StagedPath)
	return err
}

// failTransient handles a retryable error. The slot stays in processing
// while retry budget remains; only the final attempt marks it failed.
func failTransient(ctx context.Context, deps *Dependencies, log *slog.Logger, j *queue.Job, payload *MediaJobPayload, uploaded []string, err error) error {
	if !j.FinalAttempt() {
		return err
	}
	return failSlot(ctx, deps, log, payload, uploaded, err)
}

func removeStaged(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove staged file", "path", path, "error", err)
	}
}

// Video thumbnails are JPEG frames regardless of source container.
func thumbFilename(kind store.MediaKind, filename string) string {
	if kind != store.KindVideo {
		return filename
	}
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + ".jpg"
}
