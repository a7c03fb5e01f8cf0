package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"ai-assist/internal/domain"
)

// Registry holds provider adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderName]ProviderAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.ProviderName]ProviderAdapter),
	}
}

// NewDefaultRegistry returns a registry with the four built-in adapters.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry()
	for _, a := range []ProviderAdapter{
		OpenAIAdapter{},
		AnthropicAdapter{},
		GeminiAdapter{},
		NewCustomAdapter(logger),
	} {
		// Names are distinct, Register cannot fail here.
		_ = r.Register(a)
	}
	return r
}

// Register adds an adapter. Returns error if name already registered.
func (r *Registry) Register(adapter ProviderAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get retrieves an adapter by name.
func (r *Registry) Get(name domain.ProviderName) (ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrUnknownProvider, string(name))
	}
	return a, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []domain.ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]domain.ProviderName, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
