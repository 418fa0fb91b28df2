package provider

import (
	"sync"

	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
)

// Builder constructs a configured provider adapter. Builders validate their
// credentials and return a configuration error when they are incomplete.
type Builder func() (Provider, error)

// Registry resolves provider types to lazily-constructed singletons. It is
// an explicit value owned by the composition root, not package-level state.
type Registry struct {
	mu        sync.Mutex
	builders  map[vo.ProviderType]Builder
	instances map[vo.ProviderType]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:  make(map[vo.ProviderType]Builder),
		instances: make(map[vo.ProviderType]Provider),
	}
}

// Register installs the builder for a provider type, replacing any previous
// builder and dropping its cached instance.
func (r *Registry) Register(providerType vo.ProviderType, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[providerType] = builder
	delete(r.instances, providerType)
}

// Get returns the adapter for a provider type, building it on first use.
// A builder failure is not cached: a later call retries, so a config fix
// does not need a restart in dev.
func (r *Registry) Get(providerType vo.ProviderType) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, ok := r.instances[providerType]; ok {
		return instance, nil
	}

	builder, ok := r.builders[providerType]
	if !ok {
		return nil, errors.NewConfigurationError("no provider registered for type: " + string(providerType))
	}

	instance, err := builder()
	if err != nil {
		return nil, err
	}
	r.instances[providerType] = instance
	return instance, nil
}

// Clear drops all cached instances. Tests use it between cases.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[vo.ProviderType]Provider)
}

// IsValidType reports whether s names a known provider type.
func IsValidType(s string) bool {
	return vo.ValidProviderTypes[vo.ProviderType(s)]
}
