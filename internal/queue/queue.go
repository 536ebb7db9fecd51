package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps backing-store failures at enqueue time so the
	// submission path can surface degraded media handling to the caller.
	ErrUnavailable = errors.New("queue: backing store unavailable")

	ErrClosed = errors.New("queue: closed")
)

// Queue is a durable work queue with at-least-once delivery. A claimed job
// is owned by exactly one consumer until it is acked or failed.
type Queue interface {
	// Enqueue makes the job durable before returning.
	Enqueue(ctx context.Context, j *Job) error

	// Dequeue blocks until a job is eligible (including delayed retries
	// whose timestamp has arrived) or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)

	// Ack closes out a successful attempt.
	Ack(ctx context.Context, j *Job) error

	// Fail closes out a failed attempt: the job is redelivered after a
	// backoff delay while attempts remain, otherwise it is marked failed
	// permanently. Permanent errors skip the remaining budget.
	Fail(ctx context.Context, j *Job, cause error) error
}

// Inspector exposes the bounded diagnostic history and current depth.
type Inspector interface {
	RecentCompleted(ctx context.Context) ([]*Job, error)
	RecentFailed(ctx context.Context) ([]*Job, error)
	Depth(ctx context.Context) (int64, error)
}

type Options struct {
	// MaxAttempts is applied to jobs enqueued without their own budget.
	MaxAttempts int

	// BaseDelay seeds the exponential retry backoff.
	BaseDelay time.Duration

	// KeepCompleted / KeepFailed bound the diagnostic history.
	KeepCompleted int
	KeepFailed    int

	// PollInterval bounds how long a blocked Dequeue waits before
	// re-checking the delayed set.
	PollInterval time.Duration
}

func defaultOptions() Options {
	return Options{
		MaxAttempts:   3,
		BaseDelay:     2 * time.Second,
		KeepCompleted: 10,
		KeepFailed:    5,
		PollInterval:  time.Second,
	}
}

type Option func(*Options)

func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.BaseDelay = d
		}
	}
}

func WithRetention(completed, failed int) Option {
	return func(o *Options) {
		if completed > 0 {
			o.KeepCompleted = completed
		}
		if failed > 0 {
			o.KeepFailed = failed
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// RetryDelay returns the delay before retry n (1-based):
// base, 2*base, 4*base, ...
func RetryDelay(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return base << (n - 1)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: Fail moves the job straight to the
// failed history regardless of remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
