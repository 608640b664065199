// Package analysis provides the provider-agnostic client that turns a
// governance proposal into a structured risk assessment, with retry,
// fallback across backends, and strict response validation.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/c360studio/agora/backend"
	"github.com/c360studio/agora/governance"
	"github.com/google/uuid"
)

// maxResponseSize limits the backend response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// analysisTemperature keeps classifications consistent across runs.
const analysisTemperature = 0.3

// Analyzer sends proposals to the configured backends and parses the
// structured assessment out of the response.
type Analyzer struct {
	registry    *backend.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Analyzer) {
		a.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(a *Analyzer) {
		a.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an analyzer over the given backend registry.
func NewAnalyzer(registry *backend.Registry, opts ...Option) *Analyzer {
	a := &Analyzer{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for slow models
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Analyze assesses a proposal, trying each backend in the fallback chain
// with per-backend retry. A returned UnavailableError means every backend
// was unreachable; a RejectedError means a backend answered but the answer
// is unusable and trying again will not help.
func (a *Analyzer) Analyze(ctx context.Context, p *governance.Proposal) (*governance.AnalysisResult, error) {
	if err := p.Validate(); err != nil {
		return nil, NewRejectedError(fmt.Errorf("invalid proposal: %w", err))
	}

	requestID := uuid.New().String()
	startedAt := time.Now()
	messages := BuildMessages(p)

	chain := a.registry.AvailableChain()
	if len(chain) == 0 {
		return nil, NewUnavailableError(fmt.Errorf("no analysis backends configured"))
	}

	var lastErr error
	for _, name := range chain {
		endpoint := a.registry.GetEndpoint(name)
		if endpoint == nil {
			a.logger.Debug("No endpoint for backend, skipping", "backend", name)
			continue
		}

		resp, err := a.tryEndpointWithRetry(ctx, endpoint, name, messages)
		if err == nil {
			result, perr := a.parseResult(resp, endpoint)
			if perr != nil {
				// The backend answered; a different backend would get the
				// same prompt and likely the same garbage.
				return nil, perr
			}
			result.RequestID = requestID
			result.DurationMs = time.Since(startedAt).Milliseconds()

			a.logger.Debug("Analysis complete",
				"request_id", requestID,
				"dao", p.DAO,
				"proposal", p.ID,
				"backend", name,
				"model", result.Model,
				"risk", result.RiskLevel,
				"tokens", result.Usage.TotalTokens)

			return result, nil
		}

		lastErr = err

		if IsRejected(err) {
			a.logger.Warn("Backend rejected request, not trying fallbacks",
				"backend", name, "error", err)
			return nil, err
		}

		a.logger.Warn("Backend failed, trying fallback",
			"backend", name,
			"provider", endpoint.Provider,
			"error", err)
	}

	return nil, NewUnavailableError(fmt.Errorf("all analysis backends failed: %w", lastErr))
}

// tryEndpointWithRetry attempts a request against one endpoint with
// exponential backoff, updating the circuit breaker on the way out.
func (a *Analyzer) tryEndpointWithRetry(ctx context.Context, ep *backend.EndpointConfig, name string, messages []Message) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= a.retryConfig.MaxAttempts; attempt++ {
		resp, err := a.doRequest(ctx, ep, messages)
		if err == nil {
			a.registry.MarkSuccess(name)
			return resp, nil
		}

		lastErr = err

		if IsRejected(err) {
			// Rejections may indicate config issues, not endpoint health.
			return nil, err
		}

		if attempt < a.retryConfig.MaxAttempts {
			backoff := a.calculateBackoff(attempt)
			a.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", a.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, NewUnavailableError(ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	a.registry.MarkFailure(name)
	return nil, lastErr
}

// calculateBackoff computes exponential backoff with jitter. Jitter prevents
// synchronized retries when several cycles hit the same outage.
func (a *Analyzer) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= a.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(a.retryConfig.BackoffBase) * multiplier)
	if backoff > a.retryConfig.MaxBackoff {
		backoff = a.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request to the backend endpoint.
func (a *Analyzer) doRequest(ctx context.Context, ep *backend.EndpointConfig, messages []Message) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewRejectedError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	temperature := analysisTemperature
	body, err := provider.BuildRequestBody(ep.Model, messages, &temperature, ep.MaxTokens)
	if err != nil {
		return nil, NewRejectedError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewRejectedError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewUnavailableError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewUnavailableError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// resultPayload is the JSON contract the prompt asks the model to follow.
type resultPayload struct {
	RiskLevel         string   `json:"risk_level"`
	RiskFactors       []string `json:"risk_factors"`
	Sentiment         float64  `json:"sentiment"`
	KeyPoints         []string `json:"key_points"`
	EstimatedImpact   string   `json:"estimated_impact"`
	TreasuryImpactUSD float64  `json:"treasury_impact_usd"`
	Confidence        float64  `json:"confidence"`
	Rationale         string   `json:"rationale"`
}

// parseResult extracts and validates the structured assessment from the raw
// completion. Any failure here is a rejection: the backend responded, the
// response just cannot drive an automated decision.
func (a *Analyzer) parseResult(resp *Response, ep *backend.EndpointConfig) (*governance.AnalysisResult, error) {
	raw := ExtractJSON(resp.Content)
	if raw == "" {
		return nil, NewRejectedError(fmt.Errorf("no JSON object in backend response"))
	}

	var payload resultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, NewRejectedError(fmt.Errorf("parse analysis JSON: %w", err))
	}

	result := &governance.AnalysisResult{
		RiskLevel:         governance.ParseRiskLevel(payload.RiskLevel),
		RiskFactors:       payload.RiskFactors,
		Sentiment:         payload.Sentiment,
		Confidence:        payload.Confidence,
		KeyPoints:         payload.KeyPoints,
		EstimatedImpact:   payload.EstimatedImpact,
		TreasuryImpactUSD: payload.TreasuryImpactUSD,
		Rationale:         payload.Rationale,
		Model:             resp.Model,
		Provider:          ep.Provider,
		Usage:             resp.Usage,
	}

	if err := result.Validate(); err != nil {
		return nil, NewRejectedError(fmt.Errorf("invalid analysis result: %w", err))
	}

	return result, nil
}

// classifyHTTPError determines whether an HTTP error is transient or permanent.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("backend API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewUnavailableError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewUnavailableError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors won't fix themselves
		return NewRejectedError(err)
	case statusCode == http.StatusBadRequest:
		return NewRejectedError(err)
	default:
		return NewRejectedError(err)
	}
}
