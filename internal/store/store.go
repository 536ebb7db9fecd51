package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("store: post not found")

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

type SlotStatus string

const (
	SlotUploading  SlotStatus = "uploading"
	SlotProcessing SlotStatus = "processing"
	SlotProcessed  SlotStatus = "processed"
	SlotFailed     SlotStatus = "failed"
)

// MediaSlot is one attachment of a post, addressed by (post id, index).
// Slots are never reordered after creation.
type MediaSlot struct {
	Kind            MediaKind  `json:"kind"`
	OriginalName    string     `json:"original_name"`
	StagedPath      string     `json:"staged_path"`
	FinalName       string     `json:"final_name,omitempty"`
	FinalPath       string     `json:"final_path,omitempty"`
	ThumbnailName   string     `json:"thumbnail_name,omitempty"`
	SizeBytes       int64      `json:"size_bytes"`
	MimeType        string     `json:"mime_type"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	Status          SlotStatus `json:"status"`
}

type Post struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Author    string      `json:"author"`
	Media     []MediaSlot `json:"media"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SlotUpdate is a partial write against a single slot; nil fields are left
// untouched. Writers never replace the whole media list, so concurrent
// updates to sibling slots or to the post's text fields cannot be
// clobbered.
type SlotUpdate struct {
	Status          *SlotStatus `json:"status,omitempty"`
	FinalName       *string     `json:"final_name,omitempty"`
	FinalPath       *string     `json:"final_path,omitempty"`
	ThumbnailName   *string     `json:"thumbnail_name,omitempty"`
	DurationSeconds *float64    `json:"duration_seconds,omitempty"`
}

type Store interface {
	// CreatePost persists the post with all its slots atomically.
	CreatePost(ctx context.Context, p *Post) error

	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)

	ListPosts(ctx context.Context) ([]*Post, error)

	// UpdatePostText updates title/content only, leaving media untouched.
	UpdatePostText(ctx context.Context, id uuid.UUID, title, content string) error

	// UpdateSlot applies a targeted partial update to one slot. A vanished
	// post or out-of-range index is a silent no-op, so late completion
	// writes from in-flight jobs are absorbed.
	UpdateSlot(ctx context.Context, postID uuid.UUID, index int, upd SlotUpdate) error

	// DeletePost removes the post and returns it so the caller can
	// deprovision its artifacts. Returns ErrNotFound if absent.
	DeletePost(ctx context.Context, id uuid.UUID) (*Post, error)
}

// StatusPtr and StrPtr build SlotUpdate fields inline.
func StatusPtr(s SlotStatus) *SlotStatus { return &s }
func StrPtr(s string) *string            { return &s }
func Float64Ptr(f float64) *float64      { return &f }
