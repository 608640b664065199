package policy

import (
	"fmt"

	"github.com/c360studio/agora/governance"
)

// AutoRejectSentiment is the fixed "strongly negative" bound below which a
// low-risk proposal is auto-rejected (rule 4). Not configurable: the bound
// is part of the classification contract, not of per-DAO tuning.
const AutoRejectSentiment = -0.6

// Rule is one step of the ordered evaluation chain. Eval reports whether the
// rule fires; when it does, the returned classification and reason are final.
type Rule struct {
	Name string
	Eval func(a *governance.AnalysisResult, p *Policy) (governance.Classification, string, bool)
}

// Rules is the ordered evaluation chain. The first rule that fires wins, and
// the order is a contract: moving critical-escalation below the approval gate
// would auto-approve critical-but-positive proposals.
var Rules = []Rule{
	{
		Name: "min-confidence",
		Eval: func(a *governance.AnalysisResult, p *Policy) (governance.Classification, string, bool) {
			if a.Confidence < p.MinConfidence {
				return governance.ClassEscalate,
					fmt.Sprintf("confidence %.2f below required %.2f", a.Confidence, p.MinConfidence),
					true
			}
			return "", "", false
		},
	},
	{
		Name: "critical-escalates",
		Eval: func(a *governance.AnalysisResult, _ *Policy) (governance.Classification, string, bool) {
			if a.RiskLevel == governance.RiskCritical {
				return governance.ClassEscalate, "critical risk always requires human review", true
			}
			return "", "", false
		},
	},
	{
		Name: "auto-approve",
		Eval: func(a *governance.AnalysisResult, p *Policy) (governance.Classification, string, bool) {
			if !a.RiskLevel.AtMost(p.MaxAutoRisk) {
				return "", "", false
			}
			if a.Sentiment < p.MinSentiment {
				return "", "", false
			}
			if treasuryOverride(a, p) {
				return "", "", false
			}
			return governance.ClassAutoApprove,
				fmt.Sprintf("%s risk within %s ceiling, sentiment %.2f >= %.2f",
					a.RiskLevel, p.MaxAutoRisk, a.Sentiment, p.MinSentiment),
				true
		},
	},
	{
		Name: "strong-negative-reject",
		Eval: func(a *governance.AnalysisResult, _ *Policy) (governance.Classification, string, bool) {
			if a.RiskLevel == governance.RiskLow && a.Sentiment < AutoRejectSentiment {
				return governance.ClassAutoReject,
					fmt.Sprintf("low risk with strongly negative sentiment %.2f", a.Sentiment),
					true
			}
			return "", "", false
		},
	},
	{
		Name: "default-escalate",
		Eval: func(_ *governance.AnalysisResult, _ *Policy) (governance.Classification, string, bool) {
			return governance.ClassEscalate, "no automation rule matched", true
		},
	},
}

// treasuryOverride reports whether the estimated treasury impact blocks
// auto-approval under the policy's threshold.
func treasuryOverride(a *governance.AnalysisResult, p *Policy) bool {
	return p.TreasuryThreshold > 0 && a.TreasuryImpactUSD > p.TreasuryThreshold
}

// Evaluate runs the ordered rule chain and returns the classification, the
// human-readable reason, and the name of the rule that fired. It is a pure
// function: no I/O, no clock, and identical inputs always produce identical
// outputs.
func Evaluate(a *governance.AnalysisResult, p *Policy) (governance.Classification, string, string) {
	for _, rule := range Rules {
		if class, reason, ok := rule.Eval(a, p); ok {
			return class, reason, rule.Name
		}
	}
	// Unreachable: the final rule always fires.
	return governance.ClassEscalate, "no rule matched", "default-escalate"
}
