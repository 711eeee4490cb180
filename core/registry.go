package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrAdapterNotFound = errors.New("core: flow adapter not registered")

// AdapterRegistry is a concurrency-safe FlowAdapter registry keyed by
// provider.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[Provider]FlowAdapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: map[Provider]FlowAdapter{},
	}
}

func (r *AdapterRegistry) Register(adapter FlowAdapter) error {
	if r == nil {
		return fmt.Errorf("core: adapter registry is not configured")
	}
	if adapter == nil {
		return fmt.Errorf("core: adapter is required")
	}
	provider := adapter.Provider().Normalized()
	if err := provider.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[provider]; exists {
		return fmt.Errorf("core: adapter already registered for provider %q", provider)
	}
	r.adapters[provider] = adapter
	return nil
}

func (r *AdapterRegistry) Get(provider Provider) (FlowAdapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[provider.Normalized()]
	return adapter, ok
}

func (r *AdapterRegistry) List() []FlowAdapter {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.adapters))
	for provider := range r.adapters {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	out := make([]FlowAdapter, 0, len(providers))
	for _, provider := range providers {
		out = append(out, r.adapters[provider])
	}
	return out
}

var _ Registry = (*AdapterRegistry)(nil)
