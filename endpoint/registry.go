package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps operation names to factories. Each client owns its own
// registry; there is no shared global instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f under name, replacing any previous factory.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("endpoint name is required")
	}

	if f == nil {
		return fmt.Errorf("endpoint %q: factory is nil", name)
	}

	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()

	return nil
}

// RegisterAll installs every factory in fs. Iteration order is sorted so
// a failure is reported deterministically.
func (r *Registry) RegisterAll(fs map[string]Factory) error {
	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := r.Register(name, fs[name]); err != nil {
			return err
		}
	}

	return nil
}

// Resolve builds a fresh endpoint for name. Returns *UnknownEndpointError
// when nothing is registered under name.
func (r *Registry) Resolve(name, apiURL string, args ...string) (Endpoint, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownEndpointError{Name: name}
	}

	ep, err := f(apiURL, args...)
	if err != nil {
		return nil, fmt.Errorf("building endpoint %q: %w", name, err)
	}

	return ep, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]

	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)

	return names
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.factories)
}
