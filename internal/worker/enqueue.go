package worker

import (
	"context"
	"fmt"

	"github.com/minhtran-dev/blogmedia/internal/metrics"
	"github.com/minhtran-dev/blogmedia/internal/queue"
	"github.com/minhtran-dev/blogmedia/internal/store"
)

// EnqueueMediaJob submits a processing job for one media slot. The job
// type follows the slot kind.
func EnqueueMediaJob(ctx context.Context, q queue.Queue, kind store.MediaKind, payload *MediaJobPayload) (*queue.Job, error) {
	var jobType string
	switch kind {
	case store.KindImage:
		jobType = queue.TypeProcessImage
	case store.KindVideo:
		jobType = queue.TypeProcessVideo
	default:
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	j, err := queue.New(jobType, payload)
	if err != nil {
		return nil, fmt.Errorf("build job: %w", err)
	}
	if err := q.Enqueue(ctx, j); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.RecordJobEnqueued(jobType)
	return j, nil
}

// EnqueueCleanup submits a cleanup job for a batch of staged files.
func EnqueueCleanup(ctx context.Context, q queue.Queue, paths []string) (*queue.Job, error) {
	j, err := queue.New(queue.TypeCleanupTemp, &CleanupPayload{Paths: paths})
	if err != nil {
		return nil, fmt.Errorf("build job: %w", err)
	}
	if err := q.Enqueue(ctx, j); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.RecordJobEnqueued(queue.TypeCleanupTemp)
	return j, nil
}
