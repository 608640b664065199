package backend

import (
	"sync"
	"time"
)

// EndpointHealth is the circuit-breaker state for one endpoint.
type EndpointHealth struct {
	Available       bool      `json:"available"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	FailureCount    int       `json:"failure_count"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures circuit-breaker behavior.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit blocks requests before a
	// half-open test request is allowed through.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns the default circuit-breaker settings.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

type healthState struct {
	mu       sync.RWMutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
	}
}

func (h *healthState) getOrCreate(name string) *EndpointHealth {
	if status, ok := h.statuses[name]; ok {
		return status
	}
	status := &EndpointHealth{Available: true}
	h.statuses[name] = status
	return status
}

// MarkSuccess records a successful request and closes the circuit.
func (r *Registry) MarkSuccess(name string) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()

	status := r.health.getOrCreate(name)
	status.LastSuccess = time.Now()
	status.FailureCount = 0
	status.Available = true
	status.CircuitOpen = false
}

// MarkFailure records a failed request, opening the circuit once the
// failure threshold is reached.
func (r *Registry) MarkFailure(name string) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()

	status := r.health.getOrCreate(name)
	status.LastFailure = time.Now()
	status.FailureCount++

	if status.FailureCount >= r.health.config.FailureThreshold {
		status.CircuitOpen = true
		status.CircuitOpenedAt = time.Now()
		status.Available = false
	}
}

// IsAvailable reports whether an endpoint may be tried. An open circuit
// blocks requests until the recovery timeout passes, after which one
// half-open test request is allowed.
func (r *Registry) IsAvailable(name string) bool {
	r.health.mu.RLock()
	status, ok := r.health.statuses[name]
	if !ok {
		r.health.mu.RUnlock()
		return true
	}
	circuitOpen := status.CircuitOpen
	openedAt := status.CircuitOpenedAt
	recovery := r.health.config.RecoveryTimeout
	r.health.mu.RUnlock()

	if !circuitOpen {
		return true
	}
	return time.Since(openedAt) > recovery
}

// Health returns a copy of the endpoint's health state, or nil when the
// endpoint has never been marked.
func (r *Registry) Health(name string) *EndpointHealth {
	r.health.mu.RLock()
	defer r.health.mu.RUnlock()

	status, ok := r.health.statuses[name]
	if !ok {
		return nil
	}
	cp := *status
	return &cp
}

// SetHealthConfig replaces the circuit-breaker settings.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()
	r.health.config = cfg
}
