package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-memory Queue with the same retry, backoff, and
// retention semantics as RedisQueue. It backs tests and single-process
// setups; it is safe for concurrent use.
type MemoryQueue struct {
	mu        sync.Mutex
	opts      Options
	waiting   []*Job
	delayed   []delayedJob
	completed []*Job
	failed    []*Job
	closed    bool

	signal chan struct{}
}

type delayedJob struct {
	readyAt time.Time
	job     *Job
}

var _ Queue = (*MemoryQueue)(nil)
var _ Inspector = (*MemoryQueue)(nil)

func NewMemoryQueue(opts ...Option) *MemoryQueue {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryQueue{
		opts:   o,
		signal: make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, j *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = q.opts.MaxAttempts
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
	q.waiting = append(q.waiting, j)
	q.mu.Unlock()

	q.nudge()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.promoteDueLocked(time.Now())
		if len(q.waiting) > 0 {
			j := q.waiting[0]
			q.waiting = q.waiting[1:]
			q.mu.Unlock()
			return j, nil
		}
		wait := q.nextWaitLocked()
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		case <-time.After(wait):
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, j *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = prepend(q.completed, j, q.opts.KeepCompleted)
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, j *Job, cause error) error {
	q.mu.Lock()
	j.AttemptCount++
	if cause != nil {
		j.LastError = cause.Error()
	}

	if IsPermanent(cause) || j.AttemptCount >= j.MaxAttempts {
		q.failed = prepend(q.failed, j, q.opts.KeepFailed)
		q.mu.Unlock()
		return nil
	}

	q.delayed = append(q.delayed, delayedJob{
		readyAt: time.Now().Add(RetryDelay(q.opts.BaseDelay, j.AttemptCount)),
		job:     j,
	})
	q.mu.Unlock()

	q.nudge()
	return nil
}

func (q *MemoryQueue) RecentCompleted(ctx context.Context) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.completed...), nil
}

func (q *MemoryQueue) RecentFailed(ctx context.Context) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.failed...), nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.waiting) + len(q.delayed)), nil
}

// Close wakes blocked consumers and rejects further use.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.nudge()
}

func (q *MemoryQueue) promoteDueLocked(now time.Time) {
	remaining := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.readyAt.After(now) {
			q.waiting = append(q.waiting, d.job)
		} else {
			remaining = append(remaining, d)
		}
	}
	q.delayed = remaining
}

func (q *MemoryQueue) nextWaitLocked() time.Duration {
	wait := q.opts.PollInterval
	now := time.Now()
	for _, d := range q.delayed {
		if until := d.readyAt.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (q *MemoryQueue) nudge() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func prepend(history []*Job, j *Job, keep int) []*Job {
	history = append([]*Job{j}, history...)
	if len(history) > keep {
		history = history[:keep]
	}
	return history
}
