// Package main provides the agora binary entry point.
// Agora monitors DAO governance proposals on-chain, analyzes them with an
// LLM backend chain, and records automation decisions in an audit ledger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/agora/config"
	chainmonitor "github.com/c360studio/agora/processor/chain-monitor"
	governanceapi "github.com/c360studio/agora/processor/governance-api"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "agora"
)

// runnable is the lifecycle surface of a started component.
type runnable interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "agora",
		Short: "DAO governance automation pipeline",
		Long: `Agora watches SPL Governance realms for new proposals, resolves their
off-chain descriptions, analyzes them with a chain of LLM backends, and
classifies each one as auto-approve, auto-reject, or escalate-human
according to per-DAO policy.

Decisions are recorded once in an append-only ledger and published as
events over NATS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Connect to NATS
	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	// Ensure the governance stream exists before any component publishes
	if err := ensureStream(ctx, natsClient, logger); err != nil {
		return err
	}

	slog.Info("Agora ready", "version", Version)

	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}

	// Create components
	monitorConfig, err := json.Marshal(monitorConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("marshal monitor config: %w", err)
	}
	monitorComponent, err := chainmonitor.NewComponent(monitorConfig, deps)
	if err != nil {
		return fmt.Errorf("create chain-monitor: %w", err)
	}

	apiComponent, err := governanceapi.NewComponent(json.RawMessage(`{}`), deps)
	if err != nil {
		return fmt.Errorf("create governance-api: %w", err)
	}
	api := apiComponent.(*governanceapi.Component)

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Start components
	monitor := monitorComponent.(runnable)
	if err := monitor.Start(signalCtx); err != nil {
		return fmt.Errorf("start chain-monitor: %w", err)
	}
	if err := api.Start(signalCtx); err != nil {
		_ = monitor.Stop(5 * time.Second)
		return fmt.Errorf("start governance-api: %w", err)
	}

	// Serve the HTTP API
	mux := http.NewServeMux()
	api.RegisterHTTPHandlers("/governance-api", mux)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Block until shutdown signal or server failure
	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		slog.Error("HTTP server failed", "error", err)
		signalCancel()
	}

	// Stop everything
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down HTTP server", "error", err)
	}
	if err := api.Stop(10 * time.Second); err != nil {
		slog.Error("Error stopping governance-api", "error", err)
	}
	if err := monitor.Stop(10 * time.Second); err != nil {
		slog.Error("Error stopping chain-monitor", "error", err)
	}

	slog.Info("Agora shutdown complete")
	return nil
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Layered lookup: defaults, user config, project config
	return config.NewLoader(logger).Load()
}

// monitorConfigFrom maps the file configuration onto the chain-monitor
// component config.
func monitorConfigFrom(cfg *config.Config) chainmonitor.Config {
	realms := make([]chainmonitor.RealmConfig, len(cfg.Monitor.Realms))
	for i, r := range cfg.Monitor.Realms {
		realms[i] = chainmonitor.RealmConfig{Name: r.Name, Address: r.Address}
	}

	return chainmonitor.Config{
		PollInterval:        cfg.Monitor.PollInterval,
		CycleDeadline:       cfg.Monitor.CycleDeadline,
		AnalysisConcurrency: cfg.Monitor.AnalysisConcurrency,
		MaxAnalysisRetries:  cfg.Monitor.MaxAnalysisRetries,
		RPCURL:              cfg.Monitor.RPCURL,
		Realms:              realms,
		PolicyDir:           cfg.Policies.Dir,
		MetadataTimeout:     cfg.Monitor.MetadataTimeout,
		Backends:            cfg.Analysis.Backends,
		BackendChain:        cfg.Analysis.Chain,
	}
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL

	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	} else if envURL := os.Getenv("AGORA_NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// ensureStream creates the GOVERNANCE stream that carries proposal and
// decision events.
func ensureStream(ctx context.Context, natsClient *natsclient.Client, logger *slog.Logger) error {
	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        "GOVERNANCE",
		Description: "Governance proposal and decision events",
		Subjects:    []string{"governance.>"},
		Storage:     jetstream.FileStorage,
		MaxAge:      30 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("ensure GOVERNANCE stream: %w", err)
	}

	logger.Debug("JetStream stream ready", "stream", "GOVERNANCE")
	return nil
}
