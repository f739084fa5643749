package detectors

import (
	"fmt"
	"sort"
	"sync"

	"facetrack/internal/pipeline"
)

// Registry maps detector backend names to loaders
type Registry struct {
	loaders map[string]pipeline.DetectorLoader
	mu      sync.RWMutex
}

// NewRegistry creates a new loader registry
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]pipeline.DetectorLoader),
	}
}

// Register adds a loader under its Name
func (r *Registry) Register(loader pipeline.DetectorLoader) error {
	if loader == nil {
		return fmt.Errorf("loader cannot be nil")
	}

	name := loader.Name()
	if name == "" {
		return fmt.Errorf("loader name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[name]; exists {
		return fmt.Errorf("detector backend %q already registered", name)
	}

	r.loaders[name] = loader
	return nil
}

// Get returns a loader by backend name
func (r *Registry) Get(name string) (pipeline.DetectorLoader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[name]
	return l, ok
}

// Select returns the loader for name or an error listing the known backends
func (r *Registry) Select(name string) (pipeline.DetectorLoader, error) {
	if l, ok := r.Get(name); ok {
		return l, nil
	}
	return nil, fmt.Errorf("unknown detector backend %q (available: %v)", name, r.Names())
}

// Names returns the registered backend names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a loader from the registry
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[name]; !exists {
		return fmt.Errorf("detector backend %q not found", name)
	}

	delete(r.loaders, name)
	return nil
}
