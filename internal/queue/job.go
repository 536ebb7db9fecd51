package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job types understood by the media pipeline.
const (
	TypeProcessImage = "process-image"
	TypeProcessVideo = "process-video"
	TypeCleanupTemp  = "cleanup-temp"
)

// Job is one queued unit of work. AttemptCount is the number of failed
// attempts so far; the attempt currently executing is AttemptCount+1.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	LastError    string          `json:"last_error,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`

	// claimed holds the exact bytes this job was claimed with, so the
	// backing store can remove it from the active window on Ack/Fail.
	claimed []byte
}

func New(jobType string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (j *Job) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Attempt is the 1-based number of the attempt currently executing.
func (j *Job) Attempt() int {
	return j.AttemptCount + 1
}

// FinalAttempt reports whether the executing attempt is the last one the
// retry budget allows.
func (j *Job) FinalAttempt() bool {
	return j.Attempt() >= j.MaxAttempts
}
