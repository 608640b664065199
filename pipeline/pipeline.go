// Package pipeline runs a discovered proposal through the decision flow:
// dedup gate, analysis, policy evaluation, and the append-only ledger write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/agora/analysis"
	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/policy"
	"github.com/c360studio/agora/storage"
)

// Analyzer produces a structured assessment for a proposal.
type Analyzer interface {
	Analyze(ctx context.Context, p *governance.Proposal) (*governance.AnalysisResult, error)
}

// PublishFunc delivers a recorded decision to downstream consumers. Publish
// failures never affect the decision itself.
type PublishFunc func(ctx context.Context, d *governance.Decision) error

// Pipeline wires the decision flow together. One Pipeline serves all DAOs;
// per-DAO behavior comes from the policy store.
type Pipeline struct {
	analyzer   Analyzer
	dedup      storage.DedupStore
	ledger     storage.Ledger
	retry      storage.RetryStore
	policies   *policy.Store
	publish    PublishFunc
	logger     *slog.Logger
	maxRetries int
}

// Config holds the pipeline dependencies.
type Config struct {
	Analyzer Analyzer
	Dedup    storage.DedupStore
	Ledger   storage.Ledger
	Retry    storage.RetryStore
	Policies *policy.Store

	// Publish is optional; nil disables decision events.
	Publish PublishFunc

	// MaxAnalysisRetries bounds unavailable-backend retries before a
	// synthetic escalation. Zero uses the default of 3.
	MaxAnalysisRetries int

	Logger *slog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Analyzer == nil || cfg.Dedup == nil || cfg.Ledger == nil || cfg.Retry == nil || cfg.Policies == nil {
		return nil, fmt.Errorf("analyzer, dedup, ledger, retry, and policies are required")
	}
	if cfg.MaxAnalysisRetries <= 0 {
		cfg.MaxAnalysisRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		analyzer:   cfg.Analyzer,
		dedup:      cfg.Dedup,
		ledger:     cfg.Ledger,
		retry:      cfg.Retry,
		policies:   cfg.Policies,
		publish:    cfg.Publish,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxAnalysisRetries,
	}, nil
}

// Process runs one proposal through the decision flow.
//
// Returns (nil, nil) when the proposal was already processed, and
// (nil, err) when analysis was unavailable and the proposal went to the
// retry queue. In every other case exactly one decision is appended to the
// ledger and returned.
func (pl *Pipeline) Process(ctx context.Context, p *governance.Proposal) (*governance.Decision, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proposal: %w", err)
	}

	pol := pl.policies.Snapshot(p.DAO)

	// The dedup gate comes before any expensive work. Marking first means a
	// crash can at worst lose one analysis, never duplicate a decision.
	if err := pl.dedup.CheckAndMark(ctx, p.DAO, p.ID); err != nil {
		if errors.Is(err, storage.ErrAlreadyProcessed) {
			pl.logger.Debug("Proposal already processed, skipping",
				"dao", p.DAO, "proposal", p.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("dedup gate: %w", err)
	}

	result, err := pl.analyzer.Analyze(ctx, p)
	if err != nil {
		return pl.handleAnalysisFailure(ctx, p, pol, err)
	}

	if keyword := matchEmergencyKeyword(p, pol.EmergencyKeywords); keyword != "" &&
		result.RiskLevel != governance.RiskCritical {
		// Emergency language overrides the assessed risk so the critical
		// escalation rule fires.
		result.RiskLevel = governance.RiskCritical
		result.RiskFactors = append(result.RiskFactors,
			fmt.Sprintf("emergency keyword %q in proposal text", keyword))
	}

	class, reason, rule := policy.Evaluate(result, pol)

	decision := &governance.Decision{
		ProposalID:     p.ID,
		DAO:            p.DAO,
		Classification: class,
		Reason:         fmt.Sprintf("%s: %s", rule, reason),
		Analysis:       *result,
		Policy:         pol.Snapshot(),
		DecidedAt:      time.Now().UTC(),
	}

	if err := pl.record(ctx, p, decision); err != nil {
		return nil, err
	}

	pl.logger.Info("Decision recorded",
		"dao", p.DAO,
		"proposal", p.ID,
		"classification", class,
		"rule", rule,
		"risk", result.RiskLevel,
		"confidence", result.Confidence)

	return decision, nil
}

// handleAnalysisFailure routes the two failure modes: rejected responses
// escalate immediately, unavailable backends go through the bounded retry
// queue before a synthetic escalation.
func (pl *Pipeline) handleAnalysisFailure(ctx context.Context, p *governance.Proposal, pol *policy.Policy, analysisErr error) (*governance.Decision, error) {
	if analysis.IsRejected(analysisErr) {
		pl.logger.Warn("Analysis rejected, escalating",
			"dao", p.DAO, "proposal", p.ID, "error", analysisErr)

		decision := syntheticEscalation(p, pol,
			fmt.Sprintf("analysis rejected: %v", analysisErr))
		if err := pl.record(ctx, p, decision); err != nil {
			return nil, err
		}
		return decision, nil
	}

	if errors.Is(analysisErr, context.Canceled) || errors.Is(analysisErr, context.DeadlineExceeded) {
		// The cycle deadline interrupted the analysis; the backend is not
		// known to be down, so the retry budget stays untouched. Releasing
		// the marking lets the next cycle pick the proposal up fresh.
		pl.rollback(ctx, p)
		pl.logger.Debug("Analysis interrupted by cycle deadline, deferring",
			"dao", p.DAO, "proposal", p.ID)
		return nil, fmt.Errorf("analysis interrupted: %w", analysisErr)
	}

	attempts, rerr := pl.retry.Record(ctx, p)
	if rerr != nil {
		// Can't even track the retry; release the proposal entirely.
		pl.rollback(ctx, p)
		return nil, fmt.Errorf("record analysis retry: %w", rerr)
	}

	if attempts < pl.maxRetries {
		// Release the dedup marking so the retry drain can re-enter the
		// gate on a later cycle.
		pl.rollback(ctx, p)
		pl.logger.Warn("Analysis unavailable, queued for retry",
			"dao", p.DAO, "proposal", p.ID,
			"attempt", attempts, "max_attempts", pl.maxRetries,
			"error", analysisErr)
		return nil, fmt.Errorf("analysis unavailable (attempt %d/%d): %w",
			attempts, pl.maxRetries, analysisErr)
	}

	pl.logger.Error("Analysis retries exhausted, escalating",
		"dao", p.DAO, "proposal", p.ID, "attempts", attempts)

	decision := syntheticEscalation(p, pol,
		fmt.Sprintf("analysis unavailable after %d attempts", attempts))
	if err := pl.record(ctx, p, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// record appends the decision and performs the post-append cleanup. An
// append failure rolls back the dedup marking so the proposal can be
// processed again; a duplicate is an invariant breach and is surfaced, not
// swallowed.
func (pl *Pipeline) record(ctx context.Context, p *governance.Proposal, d *governance.Decision) error {
	if err := pl.ledger.Append(ctx, d); err != nil {
		if errors.Is(err, storage.ErrDuplicateDecision) {
			pl.logger.Error("Ledger already holds a decision for a proposal that passed the dedup gate",
				"dao", d.DAO, "proposal", d.ProposalID)
			return fmt.Errorf("ledger consistency: %w", err)
		}
		pl.rollback(ctx, p)
		return fmt.Errorf("append decision: %w", err)
	}

	if err := pl.retry.Clear(ctx, d.DAO, d.ProposalID); err != nil {
		pl.logger.Warn("Failed to clear retry entry after decision",
			"dao", d.DAO, "proposal", d.ProposalID, "error", err)
	}

	if pl.publish != nil {
		if err := pl.publish(ctx, d); err != nil {
			pl.logger.Warn("Failed to publish decision event",
				"dao", d.DAO, "proposal", d.ProposalID, "error", err)
		}
	}

	return nil
}

// rollback releases the dedup marking after a failure before the decision
// was durably recorded. It runs on failure paths where the cycle context may
// already be cancelled, so the unmark detaches from cancellation.
func (pl *Pipeline) rollback(ctx context.Context, p *governance.Proposal) {
	ctx = context.WithoutCancel(ctx)
	if err := pl.dedup.Unmark(ctx, p.DAO, p.ID); err != nil {
		pl.logger.Error("Failed to roll back processed marking",
			"dao", p.DAO, "proposal", p.ID, "error", err)
	}
}

// syntheticEscalation builds the decision recorded when no usable analysis
// exists. Confidence zero and Synthetic set keep these distinguishable from
// analyzed escalations in the ledger.
func syntheticEscalation(p *governance.Proposal, pol *policy.Policy, reason string) *governance.Decision {
	return &governance.Decision{
		ProposalID:     p.ID,
		DAO:            p.DAO,
		Classification: governance.ClassEscalate,
		Reason:         reason,
		Analysis: governance.AnalysisResult{
			RiskLevel:   governance.RiskHigh,
			RiskFactors: []string{"no successful analysis"},
			Confidence:  0,
		},
		Policy:    pol.Snapshot(),
		Synthetic: true,
		DecidedAt: time.Now().UTC(),
	}
}

// matchEmergencyKeyword returns the first emergency keyword found in the
// proposal title or body, or empty.
func matchEmergencyKeyword(p *governance.Proposal, keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	text := strings.ToLower(p.Title + " " + p.Body)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}
