// Package governanceapi provides HTTP endpoints for querying observed
// proposals, the decision ledger, and derived pipeline statistics.
package governanceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/storage"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
)

// Querier is the read-only storage surface the HTTP handlers use.
type Querier interface {
	Get(ctx context.Context, dao, proposalID string) (*governance.Decision, error)
	List(ctx context.Context, filter storage.DecisionFilter) ([]*governance.Decision, error)
	GetProposal(ctx context.Context, dao, proposalID string) (*governance.Proposal, error)
	ListProposals(ctx context.Context, dao string) ([]*governance.Proposal, error)
}

// Component implements the governance-api component.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// store is created lazily: the KV buckets may not exist until the
	// chain monitor has started.
	store Querier

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent creates a new governance-api component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.MaxListResults == 0 {
		config.MaxListResults = defaults.MaxListResults
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "governance-api",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized governance-api",
		"max_list_results", c.config.MaxListResults)
	return nil
}

// Start begins the component.
func (c *Component) Start(ctx context.Context) error {
	// Atomically transition from stopped to starting
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		currentState := c.state.Load()
		if currentState == stateRunning || currentState == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", currentState)
	}

	// Ensure we transition to stopped if setup fails
	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}

	// Try to open the store now; queries retry lazily if the buckets are
	// not there yet.
	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		c.logger.Warn("Store not available yet, will retry on queries", "error", err)
	}

	_, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if err == nil {
		c.store = store
	}
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)

	c.logger.Info("governance-api started")

	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		currentState := c.state.Load()
		if currentState == stateStopped || currentState == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", currentState)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)

	c.logger.Info("governance-api stopped")

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "governance-api",
		Type:        "processor",
		Description: "HTTP endpoints for proposals, the decision ledger, and pipeline statistics",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return apiSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

// getStore returns the storage handle, attempting to open it if Start could
// not.
func (c *Component) getStore(ctx context.Context) (Querier, error) {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()

	if store != nil {
		return store, nil
	}

	// Upgrade to write lock and check again (double-checked locking)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return c.store, nil
	}

	if c.natsClient == nil {
		return nil, fmt.Errorf("NATS client required")
	}
	js, err := c.natsClient.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}
	store, err = storage.NewStore(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c.store = store

	return store, nil
}
