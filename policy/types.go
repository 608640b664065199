// Package policy holds the per-DAO automation policies and the pure decision
// engine that maps an analysis result to a classification.
package policy

import (
	"fmt"

	"github.com/c360studio/agora/governance"
)

// Policy is the per-DAO automation configuration. It is loaded from a YAML
// file in the policies directory, snapshotted once per processing cycle, and
// immutable during that cycle.
type Policy struct {
	// DAO is the realm name this policy applies to. The reserved name
	// "default" supplies the fallback for DAOs without their own file.
	DAO string `yaml:"dao" json:"dao"`

	// MaxAutoRisk is the highest risk level eligible for auto-approval.
	MaxAutoRisk governance.RiskLevel `yaml:"max_auto_risk" json:"max_auto_risk"`

	// MinSentiment is the minimum sentiment score for auto-approval.
	MinSentiment float64 `yaml:"min_sentiment" json:"min_sentiment"`

	// MinConfidence is the minimum backend confidence for any automated
	// action. Below it, everything escalates.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// TreasuryThreshold is the USD treasury impact above which a proposal
	// is never auto-approved, regardless of risk and sentiment.
	TreasuryThreshold float64 `yaml:"treasury_threshold" json:"treasury_threshold"`

	// EmergencyKeywords raise the effective risk to critical when they
	// appear in the proposal text, before policy evaluation.
	EmergencyKeywords []string `yaml:"emergency_keywords,omitempty" json:"emergency_keywords,omitempty"`
}

// DefaultPolicy returns the conservative fallback policy applied to DAOs
// without a policy file of their own.
func DefaultPolicy() *Policy {
	return &Policy{
		DAO:               "default",
		MaxAutoRisk:       governance.RiskLow,
		MinSentiment:      0.0,
		MinConfidence:     0.8,
		TreasuryThreshold: 50000,
		EmergencyKeywords: []string{"emergency", "critical", "urgent", "hack", "exploit"},
	}
}

// Validate checks policy bounds.
func (p *Policy) Validate() error {
	if p.DAO == "" {
		return fmt.Errorf("policy dao is required")
	}
	if !p.MaxAutoRisk.IsValid() {
		return fmt.Errorf("policy %s: invalid max_auto_risk %q", p.DAO, p.MaxAutoRisk)
	}
	if p.MaxAutoRisk == governance.RiskCritical {
		return fmt.Errorf("policy %s: critical risk is never auto-approvable", p.DAO)
	}
	if p.MinSentiment < -1 || p.MinSentiment > 1 {
		return fmt.Errorf("policy %s: min_sentiment %v out of range [-1, 1]", p.DAO, p.MinSentiment)
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("policy %s: min_confidence %v out of range [0, 1]", p.DAO, p.MinConfidence)
	}
	if p.TreasuryThreshold < 0 {
		return fmt.Errorf("policy %s: treasury_threshold must not be negative", p.DAO)
	}
	return nil
}

// Snapshot returns the policy fields that get embedded in a Decision.
func (p *Policy) Snapshot() governance.PolicySnapshot {
	return governance.PolicySnapshot{
		MaxAutoRisk:       p.MaxAutoRisk,
		MinSentiment:      p.MinSentiment,
		MinConfidence:     p.MinConfidence,
		TreasuryThreshold: p.TreasuryThreshold,
	}
}

// clone returns a copy so cycle snapshots never alias store state.
func (p *Policy) clone() *Policy {
	cp := *p
	cp.EmergencyKeywords = append([]string(nil), p.EmergencyKeywords...)
	return &cp
}
