package media

import (
	"fmt"
	"sync"
)

// Registry maps slot kinds to their processor.
type Registry struct {
	processors map[string]Processor
	mu         sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
	}
}

func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Kind()] = p
}

func (r *Registry) Get(kind string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[kind]
	return p, ok
}

func (r *Registry) GetOrError(kind string) (Processor, error) {
	p, ok := r.Get(kind)
	if !ok {
		return nil, fmt.Errorf("no processor registered for kind %q", kind)
	}
	return p, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.processors))
	for kind := range r.processors {
		kinds = append(kinds, kind)
	}
	return kinds
}
