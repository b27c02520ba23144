package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages adapter instances. The first registered adapter becomes
// the process default unless SetDefault overrides it.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	factories map[Kind]Factory
	def       string
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		factories: make(map[Kind]Factory),
	}
}

// RegisterFactory registers a factory for an adapter kind.
func (r *Registry) RegisterFactory(kind Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == "" || factory == nil {
		return
	}
	r.factories[kind] = factory
}

// Open creates an adapter from a Config via the registered factory for its
// kind, and registers it.
func (r *Registry) Open(cfg Config) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory for kind %q", ErrAdapterNotFound, cfg.Kind)
	}
	a, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is nil")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterExists, name)
	}
	r.adapters[name] = a
	if r.def == "" {
		r.def = name
	}
	return nil
}

// SetDefault selects the adapter used when a tool names no backend.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[name]; !ok {
		return fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	r.def = name
	return nil
}

// Get retrieves an adapter by instance name. An empty name resolves to the
// default adapter.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	return a, nil
}

// List returns all adapters.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// ListByKind returns adapters matching the given kind.
func (r *Registry) ListByKind(kind Kind) []Adapter {
	all := r.List()
	out := make([]Adapter, 0, len(all))
	for _, a := range all {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}

// Names returns adapter names sorted for deterministic output.
func (r *Registry) Names() []string {
	all := r.List()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.Name())
	}
	sort.Strings(out)
	return out
}
