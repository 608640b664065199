package chainmonitor

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/agora/backend"
	"github.com/c360studio/agora/source"
	"github.com/c360studio/semstreams/component"
)

// monitorSchema defines the configuration schema.
var monitorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// RealmConfig identifies one DAO realm to monitor.
type RealmConfig struct {
	// Name is the DAO name used throughout the pipeline and the ledger.
	Name string `json:"name"`

	// Address is the realm's on-chain account address.
	Address string `json:"address"`
}

// Config holds configuration for the chain monitor component.
type Config struct {
	// PollInterval is how often to run a discovery cycle.
	PollInterval time.Duration `json:"poll_interval"`

	// CycleDeadline bounds one full cycle, including analysis fan-out.
	CycleDeadline time.Duration `json:"cycle_deadline"`

	// AnalysisConcurrency caps concurrent proposal analyses per cycle.
	AnalysisConcurrency int `json:"analysis_concurrency"`

	// MaxAnalysisRetries bounds transient analysis failures per proposal
	// before a synthetic escalation is recorded.
	MaxAnalysisRetries int `json:"max_analysis_retries"`

	// RPCURL is the Solana JSON-RPC endpoint.
	RPCURL string `json:"rpc_url,omitempty"`

	// Realms lists the DAO realms to monitor. Empty means the built-in set.
	Realms []RealmConfig `json:"realms,omitempty"`

	// PolicyDir is the directory holding per-DAO policy files. The
	// directory is watched and policies reload between cycles.
	PolicyDir string `json:"policy_dir,omitempty"`

	// MetadataTimeout bounds one off-chain description fetch.
	MetadataTimeout time.Duration `json:"metadata_timeout"`

	// Backends maps backend names to their endpoint configuration.
	Backends map[string]*backend.EndpointConfig `json:"backends,omitempty"`

	// BackendChain is the fallback order over Backends.
	BackendChain []string `json:"backend_chain,omitempty"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:        5 * time.Minute,
		CycleDeadline:       4 * time.Minute,
		AnalysisConcurrency: 4,
		MaxAnalysisRetries:  3,
		RPCURL:              source.DefaultRPCURL,
		PolicyDir:           "policies",
		MetadataTimeout:     15 * time.Second,
		Backends: map[string]*backend.EndpointConfig{
			"openrouter": {
				Provider:  "openrouter",
				Model:     "openai/gpt-4o-mini",
				MaxTokens: 1024,
			},
			"local": {
				Provider:  "ollama",
				Model:     "llama3.1:8b",
				MaxTokens: 1024,
			},
		},
		BackendChain: []string{"openrouter", "local"},
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "proposal-events",
					Type:        "jetstream",
					Subject:     "governance.proposal.>",
					StreamName:  "GOVERNANCE",
					Description: "Publish proposal discovery events",
					Required:    true,
				},
				{
					Name:        "decision-events",
					Type:        "jetstream",
					Subject:     "governance.decision.>",
					StreamName:  "GOVERNANCE",
					Description: "Publish automation decision events",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.CycleDeadline <= 0 {
		return fmt.Errorf("cycle_deadline must be positive")
	}
	if c.CycleDeadline > c.PollInterval {
		return fmt.Errorf("cycle_deadline must not exceed poll_interval")
	}
	if c.AnalysisConcurrency <= 0 {
		return fmt.Errorf("analysis_concurrency must be positive")
	}
	if c.MaxAnalysisRetries <= 0 {
		return fmt.Errorf("max_analysis_retries must be positive")
	}
	for i, r := range c.Realms {
		if r.Name == "" || r.Address == "" {
			return fmt.Errorf("realm %d: name and address are required", i)
		}
	}
	return nil
}

// realms resolves the configured realm list, falling back to the built-in set.
func (c *Config) realms() []source.Realm {
	if len(c.Realms) == 0 {
		return source.KnownRealms()
	}
	realms := make([]source.Realm, len(c.Realms))
	for i, r := range c.Realms {
		realms[i] = source.Realm{Name: r.Name, Address: r.Address}
	}
	return realms
}
