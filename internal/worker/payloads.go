package worker

import (
	"fmt"

	"github.com/google/uuid"
)

// MediaJobPayload identifies one media slot of a post together with the
// staged file the worker should process.
type MediaJobPayload struct {
	PostID     uuid.UUID `json:"post_id"`
	SlotIndex  int       `json:"slot_index"`
	StagedPath string    `json:"staged_path"`
	Filename   string    `json:"filename"`
}

func (p *MediaJobPayload) Validate() error {
	if p.PostID == uuid.Nil {
		return fmt.Errorf("missing post id")
	}
	if p.SlotIndex < 0 {
		return fmt.Errorf("negative slot index %d", p.SlotIndex)
	}
	if p.StagedPath == "" {
		return fmt.Errorf("missing staged path")
	}
	if p.Filename == "" {
		return fmt.Errorf("missing filename")
	}
	return nil
}

// CleanupPayload lists staged files to remove.
type CleanupPayload struct {
	Paths []string `json:"paths"`
}
