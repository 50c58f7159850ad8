package model

// RuleResult is the outcome of one deterministic rule
type RuleResult struct {
	RuleID        string `json:"rule_id"`
	Passed        bool   `json:"passed"`
	Indeterminate bool   `json:"indeterminate,omitempty"` // Inputs unknown or ambiguous, never passing
	Veto          bool   `json:"veto,omitempty"`          // Failing forces ineligible
	Reason        string `json:"reason"`
}
