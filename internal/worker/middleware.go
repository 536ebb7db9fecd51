package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/queue"
)

// Collector receives job lifecycle events from the metrics middleware.
type Collector interface {
	JobStarted(jobType string)
	JobCompleted(jobType string, duration time.Duration)
	JobFailed(jobType string, duration time.Duration)
	JobRetrying(jobType string, attempt int)
}

// RecoveryMiddleware converts handler panics into permanent failures so
// a crashing job cannot take down the pool or loop forever on retries.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *queue.Job) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.FromContext(ctx).Error("handler panicked",
						"job_id", j.ID,
						"job_type", j.Type,
						"panic", r,
					)
					err = queue.Permanent(fmt.Errorf("handler panic: %v", r))
				}
			}()
			return next(ctx, j)
		}
	}
}

// LoggingMiddleware logs job start and outcome with timing.
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *queue.Job) error {
			log := logger.FromContext(ctx).With(
				"job_id", j.ID,
				"job_type", j.Type,
				"attempt", j.Attempt(),
			)
			log.Info("job started")
			start := time.Now()

			err := next(ctx, j)
			duration := time.Since(start).Milliseconds()

			switch {
			case err == nil:
				log.Info("job completed", "duration_ms", duration)
			case queue.IsPermanent(err) || j.FinalAttempt():
				log.Error("job failed permanently", "duration_ms", duration, "error", err)
			default:
				log.Warn("job failed, will retry", "duration_ms", duration, "error", err)
			}
			return err
		}
	}
}

// TimeoutMiddleware bounds each handler invocation. The per-type
// override takes precedence over the default.
func TimeoutMiddleware(defaultTimeout time.Duration, perType map[string]time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *queue.Job) error {
			timeout := defaultTimeout
			if t, ok := perType[j.Type]; ok {
				timeout = t
			}
			if timeout <= 0 {
				return next(ctx, j)
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, j)
		}
	}
}

// MetricsMiddleware reports lifecycle events to the collector.
func MetricsMiddleware(c Collector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, j *queue.Job) error {
			c.JobStarted(j.Type)
			start := time.Now()

			err := next(ctx, j)
			duration := time.Since(start)

			switch {
			case err == nil:
				c.JobCompleted(j.Type, duration)
			case queue.IsPermanent(err) || j.FinalAttempt():
				c.JobFailed(j.Type, duration)
			default:
				c.JobRetrying(j.Type, j.Attempt())
			}
			return err
		}
	}
}
