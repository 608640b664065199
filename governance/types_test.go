package governance

import (
	"testing"
	"time"
)

func TestRiskLevelOrdering(t *testing.T) {
	ordered := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Severity() >= ordered[i].Severity() {
			t.Errorf("expected %s < %s", ordered[i-1], ordered[i])
		}
	}
}

func TestRiskLevelAtMost(t *testing.T) {
	tests := []struct {
		risk    RiskLevel
		ceiling RiskLevel
		want    bool
	}{
		{RiskLow, RiskLow, true},
		{RiskLow, RiskHigh, true},
		{RiskMedium, RiskLow, false},
		{RiskCritical, RiskHigh, false},
		{RiskCritical, RiskCritical, true},
		{RiskLevel("bogus"), RiskHigh, false},
		{RiskLow, RiskLevel("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.risk.AtMost(tt.ceiling); got != tt.want {
			t.Errorf("%s.AtMost(%s) = %v, want %v", tt.risk, tt.ceiling, got, tt.want)
		}
	}
}

func TestParseRiskLevel(t *testing.T) {
	if got := ParseRiskLevel("critical"); got != RiskCritical {
		t.Errorf("ParseRiskLevel(critical) = %q", got)
	}
	if got := ParseRiskLevel("severe"); got != "" {
		t.Errorf("ParseRiskLevel(severe) = %q, want empty", got)
	}
}

func TestClassificationAutomated(t *testing.T) {
	if !ClassAutoApprove.Automated() || !ClassAutoReject.Automated() {
		t.Error("auto classifications should be automated")
	}
	if ClassEscalate.Automated() {
		t.Error("escalation is not automated")
	}
}

func TestAnalysisResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  AnalysisResult
		wantErr bool
	}{
		{
			name: "valid low risk",
			result: AnalysisResult{
				RiskLevel:  RiskLow,
				Sentiment:  0.3,
				Confidence: 0.9,
			},
		},
		{
			name: "valid high risk with factors",
			result: AnalysisResult{
				RiskLevel:   RiskHigh,
				RiskFactors: []string{"treasury impact"},
				Sentiment:   -0.2,
				Confidence:  0.7,
			},
		},
		{
			name: "medium risk without factors",
			result: AnalysisResult{
				RiskLevel:  RiskMedium,
				Sentiment:  0,
				Confidence: 0.5,
			},
			wantErr: true,
		},
		{
			name: "sentiment out of range",
			result: AnalysisResult{
				RiskLevel:  RiskLow,
				Sentiment:  1.5,
				Confidence: 0.5,
			},
			wantErr: true,
		},
		{
			name: "confidence out of range",
			result: AnalysisResult{
				RiskLevel:  RiskLow,
				Sentiment:  0,
				Confidence: -0.1,
			},
			wantErr: true,
		},
		{
			name: "unknown risk level",
			result: AnalysisResult{
				RiskLevel:  "severe",
				Sentiment:  0,
				Confidence: 0.5,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecisionValidate(t *testing.T) {
	d := Decision{
		ProposalID:     "prop-1",
		DAO:            "mango",
		Classification: ClassEscalate,
		DecidedAt:      time.Now(),
	}
	if err := d.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	d.Classification = "maybe"
	if err := d.Validate(); err == nil {
		t.Error("expected error for unknown classification")
	}
}

func TestDecisionKey(t *testing.T) {
	key := DecisionKey("Mango DAO", "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgHkJ")
	if key != "Mango_DAO.7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgHkJ" {
		t.Errorf("unexpected key: %s", key)
	}

	// Keys for different DAOs never collide even with identical proposal IDs.
	a := DecisionKey("dao-a", "p1")
	b := DecisionKey("dao-b", "p1")
	if a == b {
		t.Error("keys for different DAOs must differ")
	}
}
