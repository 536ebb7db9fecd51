package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type testPayload struct {
	Value string `json:"value"`
}

func mustJob(t *testing.T, jobType, value string) *Job {
	t.Helper()
	j, err := New(jobType, testPayload{Value: value})
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return j
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, mustJob(t, TypeProcessImage, fmt.Sprintf("job-%d", i))); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		j, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		var p testPayload
		if err := j.UnmarshalPayload(&p); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if want := fmt.Sprintf("job-%d", i); p.Value != want {
			t.Errorf("dequeue order: got %q, want %q", p.Value, want)
		}
		if err := q.Ack(ctx, j); err != nil {
			t.Fatalf("ack failed: %v", err)
		}
	}
}

func TestMemoryQueueRetryBackoff(t *testing.T) {
	q := NewMemoryQueue(WithMaxAttempts(3), WithBaseDelay(20*time.Millisecond))
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustJob(t, TypeProcessImage, "retry-me")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	j, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got := j.Attempt(); got != 1 {
		t.Errorf("first attempt: got %d, want 1", got)
	}

	failedAt := time.Now()
	if err := q.Fail(ctx, j, errors.New("transient")); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	// The retry must not be visible before the backoff delay passes.
	dequeueCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	j2, err := q.Dequeue(dequeueCtx)
	if err != nil {
		t.Fatalf("dequeue of retry failed: %v", err)
	}
	if elapsed := time.Since(failedAt); elapsed < 20*time.Millisecond {
		t.Errorf("retry delivered after %v, want at least 20ms", elapsed)
	}
	if got := j2.Attempt(); got != 2 {
		t.Errorf("second attempt: got %d, want 2", got)
	}
	if j2.LastError != "transient" {
		t.Errorf("last error: got %q, want %q", j2.LastError, "transient")
	}
}

func TestMemoryQueueExhaustion(t *testing.T) {
	q := NewMemoryQueue(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustJob(t, TypeProcessImage, "doomed")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var final *Job
	for attempt := 1; attempt <= 3; attempt++ {
		dequeueCtx, cancel := context.WithTimeout(ctx, time.Second)
		j, err := q.Dequeue(dequeueCtx)
		cancel()
		if err != nil {
			t.Fatalf("dequeue attempt %d failed: %v", attempt, err)
		}
		if got := j.Attempt(); got != attempt {
			t.Errorf("attempt number: got %d, want %d", got, attempt)
		}
		if attempt == 3 && !j.FinalAttempt() {
			t.Error("third attempt should be final")
		}
		if err := q.Fail(ctx, j, errors.New("still broken")); err != nil {
			t.Fatalf("fail failed: %v", err)
		}
		final = j
	}

	failed, err := q.RecentFailed(ctx)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != final.ID {
		t.Fatalf("failed history: got %d entries, want the exhausted job", len(failed))
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 0 {
		t.Errorf("depth after exhaustion: got %d, want 0", depth)
	}
}

func TestMemoryQueuePermanentSkipsRetries(t *testing.T) {
	q := NewMemoryQueue(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustJob(t, TypeProcessImage, "no-retry")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	j, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if err := q.Fail(ctx, j, Permanent(errors.New("unprocessable"))); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	failed, err := q.RecentFailed(ctx)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed history: got %d entries, want 1", len(failed))
	}
	if failed[0].AttemptCount != 1 {
		t.Errorf("attempt count: got %d, want 1", failed[0].AttemptCount)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 0 {
		t.Errorf("depth after permanent failure: got %d, want 0", depth)
	}
}

func TestMemoryQueueRetentionBounds(t *testing.T) {
	q := NewMemoryQueue(WithRetention(3, 2), WithMaxAttempts(1))
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		j := mustJob(t, TypeProcessImage, fmt.Sprintf("done-%d", i))
		if err := q.Enqueue(ctx, j); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		if i%2 == 0 {
			if err := q.Ack(ctx, got); err != nil {
				t.Fatalf("ack failed: %v", err)
			}
		} else {
			if err := q.Fail(ctx, got, errors.New("boom")); err != nil {
				t.Fatalf("fail failed: %v", err)
			}
		}
	}

	completed, _ := q.RecentCompleted(ctx)
	if len(completed) != 3 {
		t.Errorf("completed history: got %d entries, want 3", len(completed))
	}
	failed, _ := q.RecentFailed(ctx)
	if len(failed) != 2 {
		t.Errorf("failed history: got %d entries, want 2", len(failed))
	}

	// Newest first.
	var p testPayload
	if err := completed[0].UnmarshalPayload(&p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Value != "done-4" {
		t.Errorf("newest completed: got %q, want %q", p.Value, "done-4")
	}
}

func TestMemoryQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	ctx := context.Background()
	result := make(chan *Job, 1)
	go func() {
		j, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		result <- j
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(ctx, mustJob(t, TypeCleanupTemp, "late")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case j := <-result:
		if j.Type != TypeCleanupTemp {
			t.Errorf("job type: got %q, want %q", j.Type, TypeCleanupTemp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue()
	q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, mustJob(t, TypeProcessImage, "x")); !errors.Is(err, ErrClosed) {
		t.Errorf("enqueue after close: got %v, want ErrClosed", err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("dequeue after close: got %v, want ErrClosed", err)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}

	for _, tt := range tests {
		if got := RetryDelay(2*time.Second, tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(2s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPermanentUnwrap(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Permanent(base)

	if !IsPermanent(wrapped) {
		t.Error("IsPermanent(Permanent(err)) = false")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Permanent should preserve the error chain")
	}
	if IsPermanent(base) {
		t.Error("plain error reported as permanent")
	}
	if IsPermanent(nil) {
		t.Error("nil reported as permanent")
	}
	if !IsPermanent(fmt.Errorf("context: %w", wrapped)) {
		t.Error("wrapped permanent error not detected")
	}
}
