// Package config provides configuration loading and management for Agora.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/agora/backend"
	"github.com/c360studio/agora/source"
	"gopkg.in/yaml.v3"
)

// Config represents the complete Agora configuration
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Policies PoliciesConfig `yaml:"policies"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// MonitorConfig configures on-chain proposal discovery
type MonitorConfig struct {
	// PollInterval is how often to run a discovery cycle
	PollInterval time.Duration `yaml:"poll_interval"`
	// CycleDeadline bounds one full cycle including analysis fan-out
	CycleDeadline time.Duration `yaml:"cycle_deadline"`
	// AnalysisConcurrency caps concurrent proposal analyses per cycle
	AnalysisConcurrency int `yaml:"analysis_concurrency"`
	// MaxAnalysisRetries bounds transient analysis failures per proposal
	MaxAnalysisRetries int `yaml:"max_analysis_retries"`
	// RPCURL is the Solana JSON-RPC endpoint
	RPCURL string `yaml:"rpc_url"`
	// Realms lists the DAO realms to monitor (empty = built-in set)
	Realms []source.Realm `yaml:"realms"`
	// MetadataTimeout bounds one off-chain description fetch
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
}

// AnalysisConfig configures the LLM analysis backends
type AnalysisConfig struct {
	// Backends maps backend names to endpoint configuration
	Backends map[string]*backend.EndpointConfig `yaml:"backends"`
	// Chain is the fallback order over Backends
	Chain []string `yaml:"chain"`
}

// PoliciesConfig configures per-DAO policy loading
type PoliciesConfig struct {
	// Dir is the directory holding policy files (watched for changes)
	Dir string `yaml:"dir"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
}

// HTTPConfig configures the HTTP API server
type HTTPConfig struct {
	// Addr is the listen address for the governance API
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PollInterval:        5 * time.Minute,
			CycleDeadline:       4 * time.Minute,
			AnalysisConcurrency: 4,
			MaxAnalysisRetries:  3,
			RPCURL:              source.DefaultRPCURL,
			Realms:              nil, // Built-in set
			MetadataTimeout:     15 * time.Second,
		},
		Analysis: AnalysisConfig{
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
			Chain: []string{"openrouter", "local"},
		},
		Policies: PoliciesConfig{
			Dir: "policies",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.CycleDeadline <= 0 || c.Monitor.CycleDeadline > c.Monitor.PollInterval {
		return fmt.Errorf("monitor.cycle_deadline must be positive and not exceed poll_interval")
	}
	if c.Monitor.AnalysisConcurrency <= 0 {
		return fmt.Errorf("monitor.analysis_concurrency must be positive")
	}
	if c.Monitor.RPCURL == "" {
		return fmt.Errorf("monitor.rpc_url is required")
	}
	if len(c.Analysis.Chain) == 0 {
		return fmt.Errorf("analysis.chain must name at least one backend")
	}
	for _, name := range c.Analysis.Chain {
		ep, ok := c.Analysis.Backends[name]
		if !ok {
			return fmt.Errorf("analysis.chain references unknown backend %q", name)
		}
		if ep.Provider == "" || ep.Model == "" {
			return fmt.Errorf("backend %q: provider and model are required", name)
		}
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Monitor
	if other.Monitor.PollInterval != 0 {
		c.Monitor.PollInterval = other.Monitor.PollInterval
	}
	if other.Monitor.CycleDeadline != 0 {
		c.Monitor.CycleDeadline = other.Monitor.CycleDeadline
	}
	if other.Monitor.AnalysisConcurrency != 0 {
		c.Monitor.AnalysisConcurrency = other.Monitor.AnalysisConcurrency
	}
	if other.Monitor.MaxAnalysisRetries != 0 {
		c.Monitor.MaxAnalysisRetries = other.Monitor.MaxAnalysisRetries
	}
	if other.Monitor.RPCURL != "" {
		c.Monitor.RPCURL = other.Monitor.RPCURL
	}
	if len(other.Monitor.Realms) > 0 {
		c.Monitor.Realms = other.Monitor.Realms
	}
	if other.Monitor.MetadataTimeout != 0 {
		c.Monitor.MetadataTimeout = other.Monitor.MetadataTimeout
	}

	// Analysis: a file that defines backends replaces the whole set, so a
	// deployment can drop the defaults entirely.
	if len(other.Analysis.Backends) > 0 {
		c.Analysis.Backends = other.Analysis.Backends
	}
	if len(other.Analysis.Chain) > 0 {
		c.Analysis.Chain = other.Analysis.Chain
	}

	// Policies
	if other.Policies.Dir != "" {
		c.Policies.Dir = other.Policies.Dir
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
}
