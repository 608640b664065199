// Package stats derives pipeline statistics from the decision ledger. The
// ledger is the single source of truth: every number here is recomputed from
// the decisions, never counted incrementally, so a restart can't drift.
package stats

import (
	"github.com/c360studio/agora/governance"
)

// Summary is the aggregate view over a set of decisions.
type Summary struct {
	TotalDecisions int `json:"total_decisions"`

	AutoApproved int `json:"auto_approved"`
	AutoRejected int `json:"auto_rejected"`
	Escalated    int `json:"escalated"`

	// AutomationRate is the fraction of decisions resolved without a human,
	// in [0, 1]. Zero when there are no decisions.
	AutomationRate float64 `json:"automation_rate"`

	// SyntheticDecisions counts decisions made without a successful analysis.
	SyntheticDecisions int `json:"synthetic_decisions"`

	// RiskDistribution counts decisions by assessed risk level.
	RiskDistribution map[governance.RiskLevel]int `json:"risk_distribution"`

	// PerDAO breaks the same numbers down by DAO.
	PerDAO map[string]*DAOSummary `json:"per_dao"`

	// Tokens is the total token consumption across all analyses.
	Tokens governance.TokenUsage `json:"tokens"`
}

// DAOSummary is the per-DAO slice of the aggregate.
type DAOSummary struct {
	TotalDecisions int     `json:"total_decisions"`
	AutoApproved   int     `json:"auto_approved"`
	AutoRejected   int     `json:"auto_rejected"`
	Escalated      int     `json:"escalated"`
	AutomationRate float64 `json:"automation_rate"`
}

// Compute aggregates a set of decisions into a Summary. Pure function of its
// input; identical ledgers always produce identical summaries.
func Compute(decisions []*governance.Decision) *Summary {
	s := &Summary{
		RiskDistribution: make(map[governance.RiskLevel]int),
		PerDAO:           make(map[string]*DAOSummary),
	}

	for _, d := range decisions {
		s.TotalDecisions++

		dao, ok := s.PerDAO[d.DAO]
		if !ok {
			dao = &DAOSummary{}
			s.PerDAO[d.DAO] = dao
		}
		dao.TotalDecisions++

		switch d.Classification {
		case governance.ClassAutoApprove:
			s.AutoApproved++
			dao.AutoApproved++
		case governance.ClassAutoReject:
			s.AutoRejected++
			dao.AutoRejected++
		default:
			s.Escalated++
			dao.Escalated++
		}

		if d.Synthetic {
			s.SyntheticDecisions++
		}
		if d.Analysis.RiskLevel.IsValid() {
			s.RiskDistribution[d.Analysis.RiskLevel]++
		}

		s.Tokens.PromptTokens += d.Analysis.Usage.PromptTokens
		s.Tokens.CompletionTokens += d.Analysis.Usage.CompletionTokens
		s.Tokens.TotalTokens += d.Analysis.Usage.TotalTokens
	}

	if s.TotalDecisions > 0 {
		s.AutomationRate = float64(s.AutoApproved+s.AutoRejected) / float64(s.TotalDecisions)
	}
	for _, dao := range s.PerDAO {
		if dao.TotalDecisions > 0 {
			dao.AutomationRate = float64(dao.AutoApproved+dao.AutoRejected) / float64(dao.TotalDecisions)
		}
	}

	return s
}
