package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/agora/source"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Monitor.PollInterval != 5*time.Minute {
		t.Errorf("expected default poll interval 5m, got %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.RPCURL != source.DefaultRPCURL {
		t.Errorf("expected default RPC URL %s, got %s", source.DefaultRPCURL, cfg.Monitor.RPCURL)
	}
	if len(cfg.Analysis.Chain) != 2 {
		t.Errorf("expected two backends in the default chain, got %d", len(cfg.Analysis.Chain))
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default HTTP addr :8080, got %s", cfg.HTTP.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.Monitor.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "cycle deadline exceeds poll interval",
			modify:  func(c *Config) { c.Monitor.CycleDeadline = time.Hour },
			wantErr: true,
		},
		{
			name:    "missing RPC URL",
			modify:  func(c *Config) { c.Monitor.RPCURL = "" },
			wantErr: true,
		},
		{
			name:    "empty backend chain",
			modify:  func(c *Config) { c.Analysis.Chain = nil },
			wantErr: true,
		},
		{
			name:    "chain references unknown backend",
			modify:  func(c *Config) { c.Analysis.Chain = []string{"missing"} },
			wantErr: true,
		},
		{
			name: "backend missing model",
			modify: func(c *Config) {
				c.Analysis.Backends["openrouter"].Model = ""
			},
			wantErr: true,
		},
		{
			name:    "missing NATS URL",
			modify:  func(c *Config) { c.NATS.URL = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
monitor:
  poll_interval: 2m
  cycle_deadline: 90s
  rpc_url: "https://rpc.example.org"
  realms:
    - name: "Mango DAO"
      address: "DPiH3H3c7t47BMxqTxLsuPQpEC6Kne8GA9VXbxpnZxFE"
analysis:
  backends:
    primary:
      provider: openrouter
      model: "openai/gpt-4o"
      max_tokens: 2048
  chain:
    - primary
policies:
  dir: "/etc/agora/policies"
nats:
  url: "nats://test:4222"
http:
  addr: ":9090"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Monitor.PollInterval != 2*time.Minute {
		t.Errorf("expected poll interval 2m, got %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.CycleDeadline != 90*time.Second {
		t.Errorf("expected cycle deadline 90s, got %v", cfg.Monitor.CycleDeadline)
	}
	if cfg.Monitor.RPCURL != "https://rpc.example.org" {
		t.Errorf("expected RPC URL https://rpc.example.org, got %s", cfg.Monitor.RPCURL)
	}
	if len(cfg.Monitor.Realms) != 1 || cfg.Monitor.Realms[0].Name != "Mango DAO" {
		t.Errorf("expected one Mango DAO realm, got %+v", cfg.Monitor.Realms)
	}
	if ep := cfg.Analysis.Backends["primary"]; ep == nil || ep.Model != "openai/gpt-4o" {
		t.Errorf("expected primary backend with model openai/gpt-4o, got %+v", ep)
	}
	if len(cfg.Analysis.Chain) != 1 || cfg.Analysis.Chain[0] != "primary" {
		t.Errorf("expected chain [primary], got %v", cfg.Analysis.Chain)
	}
	if cfg.Policies.Dir != "/etc/agora/policies" {
		t.Errorf("expected policies dir /etc/agora/policies, got %s", cfg.Policies.Dir)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("expected HTTP addr :9090, got %s", cfg.HTTP.Addr)
	}

	// Defaults survive for unstated fields.
	if cfg.Monitor.AnalysisConcurrency != 4 {
		t.Errorf("expected default analysis concurrency 4, got %d", cfg.Monitor.AnalysisConcurrency)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Monitor: MonitorConfig{
			PollInterval: time.Minute,
			RPCURL:       "https://rpc.override.org",
		},
		HTTP: HTTPConfig{
			Addr: ":9999",
		},
	}

	base.Merge(override)

	if base.Monitor.PollInterval != time.Minute {
		t.Errorf("expected poll interval 1m, got %v", base.Monitor.PollInterval)
	}
	if base.Monitor.RPCURL != "https://rpc.override.org" {
		t.Errorf("expected overridden RPC URL, got %s", base.Monitor.RPCURL)
	}
	// Concurrency should remain from base since override didn't set it
	if base.Monitor.AnalysisConcurrency != 4 {
		t.Errorf("expected analysis concurrency to remain default, got %d", base.Monitor.AnalysisConcurrency)
	}
	if base.HTTP.Addr != ":9999" {
		t.Errorf("expected HTTP addr :9999, got %s", base.HTTP.Addr)
	}
	// Backend set should remain from base
	if len(base.Analysis.Backends) != 2 {
		t.Errorf("expected backend set to remain default, got %d entries", len(base.Analysis.Backends))
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Monitor.RPCURL = "https://rpc.saved.org"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Monitor.RPCURL != "https://rpc.saved.org" {
		t.Errorf("expected RPC URL https://rpc.saved.org, got %s", loaded.Monitor.RPCURL)
	}
}
