// Package backend manages the analysis backend endpoints: the ordered
// fallback chain, per-endpoint configuration, and circuit-breaker health
// tracking used to skip endpoints that keep failing.
package backend

import (
	"fmt"
	"sync"
)

// EndpointConfig defines one analysis backend endpoint.
type EndpointConfig struct {
	// Provider is the wire protocol implementation (openrouter, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens caps the completion length. 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Registry holds the configured endpoints and the fallback order in which
// the analyzer tries them.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*EndpointConfig
	chain     []string
	health    *healthState
}

// NewRegistry creates a registry from named endpoints and a fallback chain.
// Every chain entry must name a configured endpoint.
func NewRegistry(endpoints map[string]*EndpointConfig, chain []string) (*Registry, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}
	for _, name := range chain {
		if _, ok := endpoints[name]; !ok {
			return nil, fmt.Errorf("chain references unknown backend %q", name)
		}
	}
	return &Registry{
		endpoints: endpoints,
		chain:     append([]string(nil), chain...),
		health:    newHealthState(DefaultHealthConfig()),
	}, nil
}

// GetEndpoint returns the endpoint configuration for a backend name, or nil.
func (r *Registry) GetEndpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// Chain returns the full fallback chain in configured order.
func (r *Registry) Chain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.chain...)
}

// AvailableChain returns the fallback chain filtered to endpoints whose
// circuit is closed. When every circuit is open the full chain is returned;
// trying something beats trying nothing.
func (r *Registry) AvailableChain() []string {
	chain := r.Chain()
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// ListEndpoints returns all configured endpoint names.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}
