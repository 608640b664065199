// Package governance defines the core domain types of the Agora pipeline:
// proposals observed on-chain, analysis results produced by the LLM backend,
// and the immutable automation decisions recorded in the audit ledger.
package governance

import (
	"fmt"
	"time"
)

// RiskLevel is the ordered risk assessment of a proposal.
// Ordering matters: Low < Medium < High < Critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskOrder maps risk levels to their severity rank.
var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Severity returns the numeric rank of the risk level, or -1 for unknown values.
func (r RiskLevel) Severity() int {
	if rank, ok := riskOrder[r]; ok {
		return rank
	}
	return -1
}

// IsValid checks if the risk level is a known value.
func (r RiskLevel) IsValid() bool {
	_, ok := riskOrder[r]
	return ok
}

// AtMost reports whether r is no more severe than the given ceiling.
func (r RiskLevel) AtMost(ceiling RiskLevel) bool {
	return r.IsValid() && ceiling.IsValid() && r.Severity() <= ceiling.Severity()
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// ParseRiskLevel converts a string to a RiskLevel, returning empty for invalid values.
func ParseRiskLevel(s string) RiskLevel {
	r := RiskLevel(s)
	if r.IsValid() {
		return r
	}
	return ""
}

// Classification is the automation decision for a proposal.
type Classification string

const (
	// ClassAutoApprove votes yes without human involvement.
	ClassAutoApprove Classification = "auto-approve"

	// ClassAutoReject votes no without human involvement.
	ClassAutoReject Classification = "auto-reject"

	// ClassEscalate routes the proposal to a human reviewer.
	ClassEscalate Classification = "escalate-human"
)

// IsValid checks if the classification is a known value.
func (c Classification) IsValid() bool {
	switch c {
	case ClassAutoApprove, ClassAutoReject, ClassEscalate:
		return true
	}
	return false
}

// Automated reports whether the classification resolves without a human.
func (c Classification) Automated() bool {
	return c == ClassAutoApprove || c == ClassAutoReject
}

// String returns the string representation of the classification.
func (c Classification) String() string {
	return string(c)
}

// ProposalStatus is the on-chain voting state of a proposal.
type ProposalStatus string

const (
	ProposalActive ProposalStatus = "active"
	ProposalClosed ProposalStatus = "closed"
)

// VoteTallies holds the current vote counts for a proposal.
// Tallies are the only mutable part of an observed proposal: they are
// refreshed on subsequent polls until the proposal closes.
type VoteTallies struct {
	Yes uint64 `json:"yes"`
	No  uint64 `json:"no"`
}

// Proposal is a governance item observed on-chain, plus any off-chain
// description content the source adapter resolved for it.
type Proposal struct {
	// ID is the on-chain account address of the proposal, unique per DAO.
	ID string `json:"id"`

	// DAO is the configured realm name the proposal belongs to.
	DAO string `json:"dao"`

	Title string `json:"title"`

	// Body is the proposal text used for analysis. When the proposal
	// carries a description link, this is the extracted off-chain content;
	// otherwise it is whatever text the chain account held.
	Body string `json:"body"`

	// DescriptionLink is the off-chain metadata URL, if any.
	DescriptionLink string `json:"description_link,omitempty"`

	Proposer  string         `json:"proposer,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Tallies   VoteTallies    `json:"tallies"`
	Quorum    uint64         `json:"quorum,omitempty"`
	Status    ProposalStatus `json:"status"`
}

// Key returns the ledger/dedup key for the proposal.
func (p *Proposal) Key() string {
	return DecisionKey(p.DAO, p.ID)
}

// Validate checks required proposal fields.
func (p *Proposal) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("proposal id is required")
	}
	if p.DAO == "" {
		return fmt.Errorf("proposal dao is required")
	}
	return nil
}

// TokenUsage records token consumption for one analysis call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AnalysisResult is the structured risk/sentiment assessment produced by the
// analysis backend for a single proposal. It is never mutated after creation;
// the Decision that references it owns its copy.
type AnalysisResult struct {
	// RequestID correlates the result with the backend call that produced it.
	RequestID string `json:"request_id,omitempty"`

	// RiskLevel is the ordered risk assessment.
	RiskLevel RiskLevel `json:"risk_level"`

	// RiskFactors lists specific named concerns. Non-empty for medium and above.
	RiskFactors []string `json:"risk_factors,omitempty"`

	// Sentiment is the community-reception score in [-1, 1].
	Sentiment float64 `json:"sentiment"`

	// Confidence is the backend's certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// KeyPoints summarizes the proposal's main objectives.
	KeyPoints []string `json:"key_points,omitempty"`

	// EstimatedImpact is a free-text impact description.
	EstimatedImpact string `json:"estimated_impact,omitempty"`

	// TreasuryImpactUSD is the backend's estimate of direct treasury
	// outflow, in USD. Zero when the proposal has no financial component.
	TreasuryImpactUSD float64 `json:"treasury_impact_usd,omitempty"`

	// Rationale is the backend's free-text reasoning.
	Rationale string `json:"rationale,omitempty"`

	// Model and Provider identify the backend that produced the result.
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`

	// Usage tracks token consumption for the call.
	Usage TokenUsage `json:"usage"`

	// DurationMs is how long the analysis call took.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// Validate checks the result's invariants.
func (a *AnalysisResult) Validate() error {
	if !a.RiskLevel.IsValid() {
		return fmt.Errorf("invalid risk level: %q", a.RiskLevel)
	}
	if a.Sentiment < -1 || a.Sentiment > 1 {
		return fmt.Errorf("sentiment %v out of range [-1, 1]", a.Sentiment)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0, 1]", a.Confidence)
	}
	if a.RiskLevel.Severity() >= RiskMedium.Severity() && len(a.RiskFactors) == 0 {
		return fmt.Errorf("risk factors required for %s risk", a.RiskLevel)
	}
	return nil
}

// Decision is the immutable, final automation classification for a proposal.
// Exactly one Decision ever exists per (DAO, proposal id); it exclusively
// owns its embedded AnalysisResult and PolicySnapshot copies.
type Decision struct {
	ProposalID string `json:"proposal_id"`
	DAO        string `json:"dao"`

	Classification Classification `json:"classification"`

	// Reason names the policy rule (or failure path) that produced the
	// classification, for the audit trail.
	Reason string `json:"reason"`

	// Analysis is the result the classification was derived from.
	Analysis AnalysisResult `json:"analysis"`

	// Policy is the snapshot of the DAO policy in force when the
	// classification was made.
	Policy PolicySnapshot `json:"policy"`

	// Synthetic marks decisions produced without a successful analysis
	// (analysis rejected, or retries exhausted).
	Synthetic bool `json:"synthetic,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}

// PolicySnapshot is the policy state embedded in a Decision. Recording it
// alongside the analysis makes every ledger entry self-explanatory.
type PolicySnapshot struct {
	MaxAutoRisk       RiskLevel `json:"max_auto_risk"`
	MinSentiment      float64   `json:"min_sentiment"`
	MinConfidence     float64   `json:"min_confidence"`
	TreasuryThreshold float64   `json:"treasury_threshold"`
}

// Key returns the ledger key for the decision.
func (d *Decision) Key() string {
	return DecisionKey(d.DAO, d.ProposalID)
}

// Validate checks required decision fields.
func (d *Decision) Validate() error {
	if d.ProposalID == "" {
		return fmt.Errorf("decision proposal_id is required")
	}
	if d.DAO == "" {
		return fmt.Errorf("decision dao is required")
	}
	if !d.Classification.IsValid() {
		return fmt.Errorf("invalid classification: %q", d.Classification)
	}
	return nil
}

// DecisionKey builds the (DAO, proposal id) composite key used by the
// dedup store and the audit ledger. Dots separate the parts because NATS KV
// keys treat them as token boundaries, which keeps per-DAO listing cheap.
func DecisionKey(dao, proposalID string) string {
	return fmt.Sprintf("%s.%s", sanitizeKeyPart(dao), sanitizeKeyPart(proposalID))
}

// sanitizeKeyPart replaces characters NATS KV keys reject.
func sanitizeKeyPart(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
