// Package chainmonitor provides the processor that polls configured DAO
// realms for governance proposals and drives each active proposal through
// the decision pipeline.
package chainmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/agora/analysis"
	_ "github.com/c360studio/agora/analysis/providers"
	"github.com/c360studio/agora/backend"
	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/pipeline"
	"github.com/c360studio/agora/policy"
	"github.com/c360studio/agora/source"
	"github.com/c360studio/agora/storage"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

// ProposalFetcher discovers proposals for one realm.
type ProposalFetcher interface {
	FetchProposals(ctx context.Context, realm source.Realm) ([]governance.Proposal, error)
}

// Enricher resolves off-chain description content for a proposal.
type Enricher interface {
	Enrich(ctx context.Context, title, link string) (string, string)
}

// Processor runs one proposal through the decision flow.
type Processor interface {
	Process(ctx context.Context, p *governance.Proposal) (*governance.Decision, error)
}

// Component implements the chain-monitor processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	fetcher  ProposalFetcher
	enricher Enricher
	analyzer *analysis.Analyzer
	policies *policy.Store
	watcher  *policy.Watcher

	// Wired in Start once NATS is available.
	pipe      Processor
	proposals storage.ProposalStore
	retries   storage.RetryStore

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	cyclesCompleted     atomic.Int64
	proposalsDiscovered atomic.Int64
	decisionsRecorded   atomic.Int64
	analysisFailures    atomic.Int64
	lastCycleMu         sync.RWMutex
	lastCycle           time.Time
}

// NewComponent creates a new chain-monitor processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CycleDeadline == 0 {
		config.CycleDeadline = defaults.CycleDeadline
	}
	if config.AnalysisConcurrency == 0 {
		config.AnalysisConcurrency = defaults.AnalysisConcurrency
	}
	if config.MaxAnalysisRetries == 0 {
		config.MaxAnalysisRetries = defaults.MaxAnalysisRetries
	}
	if config.RPCURL == "" {
		config.RPCURL = defaults.RPCURL
	}
	if config.PolicyDir == "" {
		config.PolicyDir = defaults.PolicyDir
	}
	if config.MetadataTimeout == 0 {
		config.MetadataTimeout = defaults.MetadataTimeout
	}
	if len(config.Backends) == 0 {
		config.Backends = defaults.Backends
		config.BackendChain = defaults.BackendChain
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()

	registry, err := backend.NewRegistry(config.Backends, config.BackendChain)
	if err != nil {
		return nil, fmt.Errorf("backend registry: %w", err)
	}

	return &Component{
		name:       "chain-monitor",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
		fetcher:    source.NewClient(config.RPCURL, source.WithLogger(logger)),
		enricher:   source.NewMetadataFetcher(config.MetadataTimeout, logger),
		analyzer:   analysis.NewAnalyzer(registry, analysis.WithLogger(logger)),
		policies:   policy.NewStore(config.PolicyDir, policy.DefaultPatterns, logger),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized chain-monitor",
		"poll_interval", c.config.PollInterval,
		"realms", len(c.config.realms()),
		"backend_chain", c.config.BackendChain)
	return nil
}

// Start begins polling realms and processing proposals.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	if err := c.policies.Load(); err != nil {
		c.logger.Warn("Failed to load policy directory, using built-in defaults",
			"dir", c.config.PolicyDir,
			"error", err)
	}

	watcher, err := policy.NewWatcher(c.policies, c.logger)
	if err != nil {
		c.logger.Warn("Policy watcher unavailable, policies reload on restart only",
			"error", err)
		watcher = nil
	}

	pipe, err := pipeline.New(pipeline.Config{
		Analyzer:           c.analyzer,
		Dedup:              store,
		Ledger:             store,
		Retry:              store,
		Policies:           c.policies,
		Publish:            c.publishDecisionEvent,
		MaxAnalysisRetries: c.config.MaxAnalysisRetries,
		Logger:             c.logger,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.pipe = pipe
	c.proposals = store
	c.retries = store
	c.watcher = watcher
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	if watcher != nil {
		if err := watcher.Start(subCtx); err != nil {
			c.logger.Warn("Failed to start policy watcher", "error", err)
		}
	}

	go c.pollLoop(subCtx)

	c.logger.Info("chain-monitor started",
		"poll_interval", c.config.PollInterval,
		"cycle_deadline", c.config.CycleDeadline,
		"realms", len(c.config.realms()))

	return nil
}

// pollLoop runs discovery cycles until the context is cancelled.
func (c *Component) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	c.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

// cycle runs one bounded discovery pass: drain the retry queue, fetch every
// realm, refresh stored proposals, and fan active proposals out to the
// pipeline under the concurrency cap. Realms run concurrently so a slow or
// failing realm never delays the others.
func (c *Component) cycle(ctx context.Context) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, c.config.CycleDeadline)
	defer cancel()

	c.drainRetries(cctx)

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.config.AnalysisConcurrency)

	for _, realm := range c.config.realms() {
		wg.Add(1)
		go func(realm source.Realm) {
			defer wg.Done()

			proposals, err := c.fetcher.FetchProposals(cctx, realm)
			if err != nil {
				c.logger.Warn("Failed to fetch realm proposals",
					"dao", realm.Name,
					"error", err)
				return
			}

			c.logger.Debug("Fetched realm proposals",
				"dao", realm.Name,
				"count", len(proposals))

			for i := range proposals {
				c.observe(cctx, &proposals[i], sem, &wg)
			}
		}(realm)
	}

	wg.Wait()

	c.cyclesCompleted.Add(1)
	metricCycles.Inc()
	metricCycleDuration.Observe(time.Since(start).Seconds())
	c.updateLastCycle()
}

// observe records one fetched proposal and schedules analysis if it is
// still active.
func (c *Component) observe(ctx context.Context, p *governance.Proposal, sem chan struct{}, wg *sync.WaitGroup) {
	if p.DescriptionLink != "" {
		title, body := c.enricher.Enrich(ctx, p.Title, p.DescriptionLink)
		if title != "" {
			p.Title = title
		}
		if body != "" {
			p.Body = body
		}
	}

	if _, err := c.proposals.GetProposal(ctx, p.DAO, p.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.proposalsDiscovered.Add(1)
			metricProposalsDiscovered.WithLabelValues(p.DAO).Inc()
			if perr := c.publishProposalEvent(ctx, p); perr != nil {
				c.logger.Warn("Failed to publish proposal event",
					"dao", p.DAO, "proposal", p.ID, "error", perr)
			}
		} else {
			c.logger.Warn("Failed to look up stored proposal",
				"dao", p.DAO, "proposal", p.ID, "error", err)
		}
	}

	// Upsert refreshes vote tallies and status on every cycle.
	if err := c.proposals.Upsert(ctx, p); err != nil {
		c.logger.Warn("Failed to store proposal",
			"dao", p.DAO, "proposal", p.ID, "error", err)
	}

	if p.Status != governance.ProposalActive {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-sem }()
		c.process(ctx, p)
	}()
}

// process runs one proposal through the pipeline and tracks the outcome.
// The pipeline handles dedup, retry queuing, and its own logging; errors
// here just mean no decision was recorded this cycle.
func (c *Component) process(ctx context.Context, p *governance.Proposal) {
	d, err := c.pipe.Process(ctx, p)
	if err != nil {
		c.analysisFailures.Add(1)
		metricAnalysisFailures.WithLabelValues(p.DAO).Inc()
		c.logger.Warn("Proposal processing deferred",
			"dao", p.DAO, "proposal", p.ID, "error", err)
		return
	}
	if d != nil {
		c.decisionsRecorded.Add(1)
		metricDecisions.WithLabelValues(d.DAO, d.Classification.String()).Inc()
	}
}

// drainRetries re-runs proposals whose analysis backend was unavailable on
// an earlier cycle. Entries carry a proposal snapshot, so no chain fetch is
// needed here.
func (c *Component) drainRetries(ctx context.Context) {
	entries, err := c.retries.Pending(ctx)
	if err != nil {
		c.logger.Warn("Failed to list retry queue", "error", err)
		return
	}

	for _, entry := range entries {
		p := entry.Proposal
		c.logger.Debug("Retrying queued proposal",
			"dao", p.DAO, "proposal", p.ID, "attempts", entry.Attempts)
		c.process(ctx, &p)
	}
}

// publishProposalEvent publishes a discovery event for a new proposal.
func (c *Component) publishProposalEvent(ctx context.Context, p *governance.Proposal) error {
	if c.natsClient == nil {
		return nil
	}

	event := ProposalEvent{
		Proposal:   *p,
		ObservedAt: time.Now().UTC(),
	}

	baseMsg := message.NewBaseMessage(ProposalEventType, &event, "chain-monitor")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("governance.proposal.discovered.%s", governance.DecisionKey(p.DAO, p.ID))
	if err := c.natsClient.PublishToStream(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	return nil
}

// publishDecisionEvent publishes a recorded decision. Wired as the pipeline's
// publish hook; failures are logged there and never affect the decision.
func (c *Component) publishDecisionEvent(ctx context.Context, d *governance.Decision) error {
	if c.natsClient == nil {
		return nil
	}

	event := DecisionEvent{Decision: *d}

	baseMsg := message.NewBaseMessage(DecisionEventType, &event, "chain-monitor")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("governance.decision.%s", governance.DecisionKey(d.DAO, d.ProposalID))
	if err := c.natsClient.PublishToStream(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			c.logger.Warn("Failed to stop policy watcher", "error", err)
		}
	}

	c.running = false
	c.logger.Info("chain-monitor stopped",
		"cycles_completed", c.cyclesCompleted.Load(),
		"proposals_discovered", c.proposalsDiscovered.Load(),
		"decisions_recorded", c.decisionsRecorded.Load(),
		"analysis_failures", c.analysisFailures.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "chain-monitor",
		Type:        "processor",
		Description: "Polls DAO realms for governance proposals and drives the decision pipeline",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return monitorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.analysisFailures.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastCycle(),
	}
}

func (c *Component) updateLastCycle() {
	c.lastCycleMu.Lock()
	c.lastCycle = time.Now()
	c.lastCycleMu.Unlock()
}

func (c *Component) getLastCycle() time.Time {
	c.lastCycleMu.RLock()
	defer c.lastCycleMu.RUnlock()
	return c.lastCycle
}

// ProposalEvent announces a proposal observed for the first time.
type ProposalEvent struct {
	Proposal   governance.Proposal `json:"proposal"`
	ObservedAt time.Time           `json:"observed_at"`
}

// Schema returns the message type for this payload.
func (e *ProposalEvent) Schema() message.Type {
	return ProposalEventType
}

// Validate validates the event.
func (e *ProposalEvent) Validate() error {
	return e.Proposal.Validate()
}

// MarshalJSON marshals the event to JSON.
func (e *ProposalEvent) MarshalJSON() ([]byte, error) {
	type Alias ProposalEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *ProposalEvent) UnmarshalJSON(data []byte) error {
	type Alias ProposalEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// ProposalEventType is the message type for proposal discovery events.
var ProposalEventType = message.Type{
	Domain:   "governance",
	Category: "proposal",
	Version:  "v1",
}

// DecisionEvent announces a recorded automation decision.
type DecisionEvent struct {
	Decision governance.Decision `json:"decision"`
}

// Schema returns the message type for this payload.
func (e *DecisionEvent) Schema() message.Type {
	return DecisionEventType
}

// Validate validates the event.
func (e *DecisionEvent) Validate() error {
	return e.Decision.Validate()
}

// MarshalJSON marshals the event to JSON.
func (e *DecisionEvent) MarshalJSON() ([]byte, error) {
	type Alias DecisionEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *DecisionEvent) UnmarshalJSON(data []byte) error {
	type Alias DecisionEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// DecisionEventType is the message type for decision events.
var DecisionEventType = message.Type{
	Domain:   "governance",
	Category: "decision",
	Version:  "v1",
}
