// Package adapter defines the platform adapter contract and the registry
// the execution engine dispatches through. Adapters are constructed lazily
// per execution set and torn down when the run finishes.
package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/recurhq/recur/model"
)

// PlatformAdapter executes actions against one surface. Initialize is
// called once before the first Dispatch; Close releases the surface.
type PlatformAdapter interface {
	Initialize(ctx context.Context) error
	Dispatch(ctx context.Context, action model.Action) (*model.ActionResult, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type Factory func() (PlatformAdapter, error)

type UnavailableError struct {
	Surface model.Surface
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("no adapter available for surface %s", e.Surface)
}

type Registry struct {
	mu        sync.RWMutex
	factories map[model.Surface]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.Surface]Factory)}
}

func (r *Registry) Register(surface model.Surface, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[surface] = f
}

func (r *Registry) Available(surface model.Surface) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[surface]
	return ok
}

func (r *Registry) factory(surface model.Surface) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[surface]
	return f, ok
}

// NewSet returns an empty adapter set backed by this registry. Each
// execution owns one set so adapters are never shared across runs.
func (r *Registry) NewSet() *Set {
	return &Set{registry: r, open: make(map[model.Surface]PlatformAdapter)}
}

type Set struct {
	registry *Registry
	mu       sync.Mutex
	open     map[model.Surface]PlatformAdapter
}

// Get returns the adapter for the surface, constructing and initializing
// it on first use.
func (s *Set) Get(ctx context.Context, surface model.Surface) (PlatformAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.open[surface]; ok {
		return a, nil
	}
	factory, ok := s.registry.factory(surface)
	if !ok {
		return nil, UnavailableError{Surface: surface}
	}
	a, err := factory()
	if err != nil {
		return nil, err
	}
	if err := a.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}
	s.open[surface] = a
	return a, nil
}

// CloseAll tears down every adapter the set opened. Close errors are
// collected; the first one is returned.
func (s *Set) CloseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for surface, a := range s.open {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.open, surface)
	}
	return first
}
