package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minhtran-dev/blogmedia/internal/logger"
)

const defaultKeyPrefix = "blogmedia:jobs"

// promoteScript atomically moves due delayed jobs back onto the waiting
// list. KEYS[1] = delayed zset, KEYS[2] = waiting list, ARGV[1] = now.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LPUSH', KEYS[2], job)
end
return #due
`)

// RedisQueue is the durable Queue implementation. Jobs wait on a list, are
// claimed with an atomic BLMOVE onto an active list (one consumer per job),
// and delayed retries park in a sorted set scored by their ready time.
type RedisQueue struct {
	client *redis.Client
	opts   Options

	waitingKey   string
	activeKey    string
	delayedKey   string
	completedKey string
	failedKey    string
}

var _ Queue = (*RedisQueue)(nil)
var _ Inspector = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, opts ...Option) *RedisQueue {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	prefix := defaultKeyPrefix
	return &RedisQueue{
		client:       client,
		opts:         o,
		waitingKey:   prefix + ":waiting",
		activeKey:    prefix + ":active",
		delayedKey:   prefix + ":delayed",
		completedKey: prefix + ":completed",
		failedKey:    prefix + ":failed",
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, j *Job) error {
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = q.opts.MaxAttempts
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.waitingKey, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := q.promoteDue(ctx); err != nil {
			logger.FromContext(ctx).Warn("failed to promote delayed jobs", "error", err)
		}

		data, err := q.client.BLMove(ctx, q.waitingKey, q.activeKey, "RIGHT", "LEFT", q.opts.PollInterval).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("claim job: %w", err)
		}

		var j Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			// Undecodable entries can never execute; drop them from the
			// active window instead of redelivering forever.
			logger.FromContext(ctx).Error("dropping undecodable job", "error", err)
			q.client.LRem(ctx, q.activeKey, 1, data)
			continue
		}
		j.claimed = []byte(data)
		return &j, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, j *Job) error {
	if err := q.client.LRem(ctx, q.activeKey, 1, string(j.claimed)).Err(); err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return q.record(ctx, j, q.completedKey, q.opts.KeepCompleted)
}

func (q *RedisQueue) Fail(ctx context.Context, j *Job, cause error) error {
	if err := q.client.LRem(ctx, q.activeKey, 1, string(j.claimed)).Err(); err != nil {
		return fmt.Errorf("release job: %w", err)
	}

	j.AttemptCount++
	if cause != nil {
		j.LastError = cause.Error()
	}

	if IsPermanent(cause) || j.AttemptCount >= j.MaxAttempts {
		return q.record(ctx, j, q.failedKey, q.opts.KeepFailed)
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	readyAt := time.Now().Add(RetryDelay(q.opts.BaseDelay, j.AttemptCount))
	err = q.client.ZAdd(ctx, q.delayedKey, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (q *RedisQueue) RecentCompleted(ctx context.Context) ([]*Job, error) {
	return q.history(ctx, q.completedKey)
}

func (q *RedisQueue) RecentFailed(ctx context.Context) ([]*Job, error) {
	return q.history(ctx, q.failedKey)
}

// Depth counts jobs not yet completed or failed.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.waitingKey)
	active := pipe.LLen(ctx, q.activeKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return waiting.Val() + active.Val() + delayed.Val(), nil
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	return promoteScript.Run(ctx, q.client,
		[]string{q.delayedKey, q.waitingKey},
		now,
	).Err()
}

func (q *RedisQueue) record(ctx context.Context, j *Job, key string, keep int) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(keep-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record job history: %w", err)
	}
	return nil
}

func (q *RedisQueue) history(ctx context.Context, key string) ([]*Job, error) {
	entries, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		var j Job
		if err := json.Unmarshal([]byte(entry), &j); err != nil {
			continue
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}
