package job

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Job from its JSON data.
type Factory func(data []byte) (Job, error)

// Registry maps job type names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Register registers a job type whose data is decoded into a fresh T.
func Register[T any, PT interface {
	*T
	Job
}](r *Registry, name string) {
	r.Register(name, func(data []byte) (Job, error) {
		var v T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("decoding %s job: %w", name, err)
			}
		}
		return PT(&v), nil
	})
}

// Decode returns the executable job for a payload.
func (r *Registry) Decode(p Payload) (Job, error) {
	if p.IsZero() {
		return nil, ErrEmptyPayload
	}

	r.mu.RLock()
	f, ok := r.factories[p.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, p.Type)
	}

	return f(p.Data)
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with the built-in jobs registered.
func Default() *Registry {
	r := NewRegistry()
	Register[HTTPJob](r, HTTPJobType)
	Register[LogJob](r, LogJobType)
	Register[CommandJob](r, CommandJobType)
	return r
}
