package policy

import (
	"testing"

	"github.com/c360studio/agora/governance"
	"github.com/stretchr/testify/assert"
)

func testPolicy() *Policy {
	return &Policy{
		DAO:               "test",
		MaxAutoRisk:       governance.RiskLow,
		MinSentiment:      0.0,
		MinConfidence:     0.8,
		TreasuryThreshold: 50000,
	}
}

func TestEvaluate_AutoApprove(t *testing.T) {
	a := &governance.AnalysisResult{
		RiskLevel:  governance.RiskLow,
		Sentiment:  0.3,
		Confidence: 0.95,
	}

	class, reason, rule := Evaluate(a, testPolicy())
	assert.Equal(t, governance.ClassAutoApprove, class)
	assert.Equal(t, "auto-approve", rule)
	assert.NotEmpty(t, reason)
}

func TestEvaluate_RiskExceedsCeiling(t *testing.T) {
	a := &governance.AnalysisResult{
		RiskLevel:  governance.RiskHigh,
		Sentiment:  0.7,
		Confidence: 0.87,
	}

	class, _, rule := Evaluate(a, testPolicy())
	assert.Equal(t, governance.ClassEscalate, class)
	assert.Equal(t, "default-escalate", rule)
}

func TestEvaluate_CriticalAlwaysEscalates(t *testing.T) {
	// Critical with glowing sentiment and near-certain confidence still
	// escalates: rule 2 dominates the approval gate.
	a := &governance.AnalysisResult{
		RiskLevel:  governance.RiskCritical,
		Sentiment:  0.9,
		Confidence: 0.99,
	}

	p := testPolicy()
	p.MaxAutoRisk = governance.RiskHigh

	class, _, rule := Evaluate(a, p)
	assert.Equal(t, governance.ClassEscalate, class)
	assert.Equal(t, "critical-escalates", rule)
}

func TestEvaluate_ConfidenceDominance(t *testing.T) {
	// Low confidence escalates regardless of every other field.
	for _, risk := range []governance.RiskLevel{
		governance.RiskLow, governance.RiskMedium, governance.RiskHigh, governance.RiskCritical,
	} {
		for _, sentiment := range []float64{-1, -0.7, 0, 0.5, 1} {
			a := &governance.AnalysisResult{
				RiskLevel:  risk,
				Sentiment:  sentiment,
				Confidence: 0.5,
			}
			class, _, rule := Evaluate(a, testPolicy())
			assert.Equal(t, governance.ClassEscalate, class,
				"risk=%s sentiment=%v", risk, sentiment)
			assert.Equal(t, "min-confidence", rule)
		}
	}
}

func TestEvaluate_CriticalNeverAutomated(t *testing.T) {
	// Invariant over the whole critical input space: no confidence or
	// sentiment value may produce an automated decision.
	for _, confidence := range []float64{0, 0.3, 0.8, 0.99, 1} {
		for _, sentiment := range []float64{-1, -0.6, 0, 0.9, 1} {
			a := &governance.AnalysisResult{
				RiskLevel:  governance.RiskCritical,
				Sentiment:  sentiment,
				Confidence: confidence,
			}
			class, _, _ := Evaluate(a, testPolicy())
			assert.False(t, class.Automated(),
				"critical automated with confidence=%v sentiment=%v", confidence, sentiment)
		}
	}
}

func TestEvaluate_StrongNegativeReject(t *testing.T) {
	a := &governance.AnalysisResult{
		RiskLevel:  governance.RiskLow,
		Sentiment:  -0.8,
		Confidence: 0.9,
	}

	class, _, rule := Evaluate(a, testPolicy())
	assert.Equal(t, governance.ClassAutoReject, class)
	assert.Equal(t, "strong-negative-reject", rule)

	// The same sentiment at medium risk is ambiguous and escalates.
	a.RiskLevel = governance.RiskMedium
	class, _, _ = Evaluate(a, testPolicy())
	assert.Equal(t, governance.ClassEscalate, class)
}

func TestEvaluate_TreasuryOverride(t *testing.T) {
	a := &governance.AnalysisResult{
		RiskLevel:         governance.RiskLow,
		Sentiment:         0.5,
		Confidence:        0.9,
		TreasuryImpactUSD: 120000,
	}

	class, _, rule := Evaluate(a, testPolicy())
	assert.Equal(t, governance.ClassEscalate, class)
	assert.Equal(t, "default-escalate", rule)

	// Under the threshold the same proposal auto-approves.
	a.TreasuryImpactUSD = 4999
	class, _, _ = Evaluate(a, testPolicy())
	assert.Equal(t, governance.ClassAutoApprove, class)
}

func TestEvaluate_Deterministic(t *testing.T) {
	a := &governance.AnalysisResult{
		RiskLevel:   governance.RiskMedium,
		RiskFactors: []string{"protocol change"},
		Sentiment:   0.1,
		Confidence:  0.85,
	}
	p := testPolicy()

	firstClass, firstReason, firstRule := Evaluate(a, p)
	for i := 0; i < 100; i++ {
		class, reason, rule := Evaluate(a, p)
		if class != firstClass || reason != firstReason || rule != firstRule {
			t.Fatalf("evaluation diverged on iteration %d: %s/%s vs %s/%s",
				i, class, rule, firstClass, firstRule)
		}
	}
}

func TestEvaluate_RuleOrderContract(t *testing.T) {
	want := []string{
		"min-confidence",
		"critical-escalates",
		"auto-approve",
		"strong-negative-reject",
		"default-escalate",
	}

	if len(Rules) != len(want) {
		t.Fatalf("rule chain has %d rules, want %d", len(Rules), len(want))
	}
	for i, rule := range Rules {
		if rule.Name != want[i] {
			t.Errorf("rule %d = %s, want %s", i, rule.Name, want[i])
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	p := testPolicy()
	assert.NoError(t, p.Validate())

	p.MaxAutoRisk = governance.RiskCritical
	assert.Error(t, p.Validate(), "critical must never be an auto-approve ceiling")

	p = testPolicy()
	p.MinConfidence = 1.5
	assert.Error(t, p.Validate())

	p = testPolicy()
	p.DAO = ""
	assert.Error(t, p.Validate())
}
