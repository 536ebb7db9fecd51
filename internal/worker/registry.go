package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/minhtran-dev/blogmedia/internal/queue"
)

// Handler processes a single dequeued job.
type Handler func(ctx context.Context, j *queue.Job) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Registry maps job types to handlers and carries the shared middleware
// chain applied to every handler.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	middleware []Middleware
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

func (r *Registry) Register(jobType string, h Handler) error {
	if jobType == "" {
		return fmt.Errorf("empty job type")
	}
	if h == nil {
		return fmt.Errorf("nil handler for job type %q", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// Use appends middleware to the chain. Middleware is applied in the
// order given, outermost first.
func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Resolve returns the handler for jobType with the middleware chain
// applied, or an error when no handler is registered.
func (r *Registry) Resolve(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", jobType)
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
