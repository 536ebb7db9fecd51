package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/minhtran-dev/blogmedia/internal/queue"
)

func noopHandler(err error) Handler {
	return func(ctx context.Context, j *queue.Job) error {
		return err
	}
}

func testJob(t *testing.T, jobType string) *queue.Job {
	t.Helper()
	j, err := queue.New(jobType, map[string]string{})
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	j.MaxAttempts = 3
	return j
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(func(ctx context.Context, j *queue.Job) error {
		panic("boom")
	})

	err := h(context.Background(), testJob(t, queue.TypeProcessImage))
	if err == nil {
		t.Fatal("panic should surface as an error")
	}
	if !queue.IsPermanent(err) {
		t.Errorf("panic error should be permanent, got %v", err)
	}
}

func TestRecoveryMiddlewarePassesThrough(t *testing.T) {
	want := errors.New("normal failure")
	h := RecoveryMiddleware()(noopHandler(want))

	if err := h(context.Background(), testJob(t, queue.TypeProcessImage)); !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(20*time.Millisecond, nil)(func(ctx context.Context, j *queue.Job) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	err := h(context.Background(), testJob(t, queue.TypeProcessImage))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestTimeoutMiddlewarePerTypeOverride(t *testing.T) {
	overrides := map[string]time.Duration{queue.TypeProcessVideo: 200 * time.Millisecond}
	h := TimeoutMiddleware(10*time.Millisecond, overrides)(func(ctx context.Context, j *queue.Job) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return nil
		}
	})

	// The video override outlives the 50ms handler; the default would not.
	if err := h(context.Background(), testJob(t, queue.TypeProcessVideo)); err != nil {
		t.Errorf("override timeout should allow completion, got %v", err)
	}
}

type fakeCollector struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    int
	retrying  int
}

func (c *fakeCollector) JobStarted(jobType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *fakeCollector) JobCompleted(jobType string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
}

func (c *fakeCollector) JobFailed(jobType string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

func (c *fakeCollector) JobRetrying(jobType string, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retrying++
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		handlerErr    error
		attemptCount  int
		wantCompleted int
		wantFailed    int
		wantRetrying  int
	}{
		{name: "success", handlerErr: nil, wantCompleted: 1},
		{name: "transient failure retries", handlerErr: errors.New("flaky"), wantRetrying: 1},
		{name: "permanent failure", handlerErr: queue.Permanent(errors.New("bad input")), wantFailed: 1},
		{name: "exhausted budget", handlerErr: errors.New("flaky"), attemptCount: 2, wantFailed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCollector{}
			h := MetricsMiddleware(c)(noopHandler(tt.handlerErr))

			j := testJob(t, queue.TypeProcessImage)
			j.AttemptCount = tt.attemptCount
			_ = h(context.Background(), j)

			if c.started != 1 {
				t.Errorf("started: got %d, want 1", c.started)
			}
			if c.completed != tt.wantCompleted {
				t.Errorf("completed: got %d, want %d", c.completed, tt.wantCompleted)
			}
			if c.failed != tt.wantFailed {
				t.Errorf("failed: got %d, want %d", c.failed, tt.wantFailed)
			}
			if c.retrying != tt.wantRetrying {
				t.Errorf("retrying: got %d, want %d", c.retrying, tt.wantRetrying)
			}
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(queue.TypeProcessImage, noopHandler(nil)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(queue.TypeProcessImage, noopHandler(nil)); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register("", noopHandler(nil)); err == nil {
		t.Error("empty job type should fail")
	}
	if err := r.Register("x", nil); err == nil {
		t.Error("nil handler should fail")
	}

	if _, err := r.Resolve("unknown"); err == nil {
		t.Error("unknown type should not resolve")
	}
	if _, err := r.Resolve(queue.TypeProcessImage); err != nil {
		t.Errorf("resolve failed: %v", err)
	}
}

func TestRegistryMiddlewareOrder(t *testing.T) {
	r := NewRegistry()
	var order []string

	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, j *queue.Job) error {
				order = append(order, name)
				return next(ctx, j)
			}
		}
	}

	if err := r.Register("t", func(ctx context.Context, j *queue.Job) error {
		order = append(order, "handler")
		return nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	r.Use(mw("outer"), mw("inner"))

	h, err := r.Resolve("t")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := h(context.Background(), testJob(t, "t")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}
