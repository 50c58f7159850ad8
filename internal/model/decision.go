package model

import (
	"fmt"
	"time"
)

// Eligibility is the three-valued resubmission verdict
type Eligibility string

const (
	Eligible    Eligibility = "eligible"
	Ineligible  Eligibility = "ineligible"
	NeedsReview Eligibility = "needs_review"
)

// EligibilityDecision is one immutable event in the decision log
type EligibilityDecision struct {
	DecisionID           string          `json:"decision_id"`
	ClaimID              string          `json:"claim_id"`
	Eligibility          Eligibility     `json:"eligibility"`
	DeterministicResults []RuleResult    `json:"deterministic_results"`
	Inference            InferenceResult `json:"inference_result"`
	Rationale            []string        `json:"rationale"`
	RecommendedAction    string          `json:"recommended_action,omitempty"`
	DecidedAt            time.Time       `json:"decided_at"`
	Supersedes           string          `json:"supersedes,omitempty"` // Prior decision id
	InputFingerprint     string          `json:"input_fingerprint"`
	PolicyVersion        string          `json:"policy_version"`
	RulesetVersion       string          `json:"ruleset_version"`
	SourceIDs            []string        `json:"source_ids"`
}

// DecisionPolicy configures the orchestrator thresholds
type DecisionPolicy struct {
	Version             string   `yaml:"version" json:"version" mapstructure:"version"`
	AutoAcceptThreshold float64  `yaml:"auto_accept_threshold" json:"auto_accept_threshold" mapstructure:"auto_accept_threshold"`
	ReviewLow           float64  `yaml:"review_low" json:"review_low" mapstructure:"review_low"`
	VetoRuleIDs         []string `yaml:"veto_rule_ids,omitempty" json:"veto_rule_ids,omitempty" mapstructure:"veto_rule_ids"`
}

// DefaultPolicy returns the default decision policy
func DefaultPolicy() DecisionPolicy {
	return DecisionPolicy{
		Version:             "v1",
		AutoAcceptThreshold: 0.80,
		ReviewLow:           0.40,
	}
}

// Validate checks threshold ordering and that every veto id names a rule
func (p DecisionPolicy) Validate(ruleIDs []string) error {
	if p.AutoAcceptThreshold < 0 || p.AutoAcceptThreshold > 1 {
		return fmt.Errorf("%w: policy: auto_accept_threshold %.3f outside [0,1]", ErrConfig, p.AutoAcceptThreshold)
	}
	if p.ReviewLow < 0 || p.ReviewLow > 1 {
		return fmt.Errorf("%w: policy: review_low %.3f outside [0,1]", ErrConfig, p.ReviewLow)
	}
	if p.ReviewLow > p.AutoAcceptThreshold {
		return fmt.Errorf("%w: policy: review_low %.3f above auto_accept_threshold %.3f",
			ErrConfig, p.ReviewLow, p.AutoAcceptThreshold)
	}

	known := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		known[id] = true
	}
	for _, id := range p.VetoRuleIDs {
		if !known[id] {
			return fmt.Errorf("%w: policy: veto rule %q not in ruleset", ErrConfig, id)
		}
	}
	return nil
}

// IsVeto reports whether the policy marks ruleID as a veto
func (p DecisionPolicy) IsVeto(ruleID string) bool {
	for _, id := range p.VetoRuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
