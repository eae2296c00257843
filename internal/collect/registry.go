package collect

import (
	"fmt"

	"newsforge/internal/ports"
)

// Registry keeps a mapping from source kinds to their adapters.
type Registry struct {
	sources map[string]ports.Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.Source{}}
}

// Register adds or replaces a source adapter.
func (r *Registry) Register(source ports.Source) {
	if r.sources == nil {
		r.sources = map[string]ports.Source{}
	}
	r.sources[source.Kind()] = source
}

// Resolve returns an adapter by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (ports.Source, error) {
	if source, ok := r.sources[kind]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source kind %s is not registered", kind)
}
