package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/minhtran-dev/blogmedia/internal/logger"
	"github.com/minhtran-dev/blogmedia/internal/queue"
)

// Pool runs a fixed number of workers that dequeue jobs and dispatch
// them to registered handlers.
type Pool struct {
	queue    queue.Queue
	registry *Registry

	concurrency     int
	shutdownTimeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

type PoolOption func(*Pool)

func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithShutdownTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}

func NewPool(q queue.Queue, registry *Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:           q,
		registry:        registry,
		concurrency:     4,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers and blocks until ctx is canceled or Stop
// is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	log := logger.FromContext(ctx)
	log.Info("worker pool starting", "concurrency", p.concurrency)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}

	<-ctx.Done()
	p.wg.Wait()
	return ctx.Err()
}

// Stop cancels the workers and waits for in-flight jobs to finish, up
// to the shutdown timeout or ctx, whichever ends first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.shutdownTimeout):
		return errors.New("shutdown timeout exceeded")
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := logger.FromContext(ctx).With("worker", id)

	for {
		j, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		p.dispatch(ctx, log, j)
	}
}

func (p *Pool) dispatch(ctx context.Context, log *slog.Logger, j *queue.Job) {
	h, err := p.registry.Resolve(j.Type)
	if err != nil {
		log.Error("unroutable job", "job_id", j.ID, "job_type", j.Type, "error", err)
		if ferr := p.queue.Fail(ctx, j, queue.Permanent(err)); ferr != nil {
			log.Error("failed to fail job", "job_id", j.ID, "error", ferr)
		}
		return
	}

	if err := h(ctx, j); err != nil {
		if ferr := p.queue.Fail(ctx, j, err); ferr != nil {
			log.Error("failed to fail job", "job_id", j.ID, "error", ferr)
		}
		return
	}
	if err := p.queue.Ack(ctx, j); err != nil {
		log.Error("failed to ack job", "job_id", j.ID, "error", err)
	}
}
