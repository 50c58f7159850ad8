package model

import "errors"

// Error taxonomy. Component errors wrap one of these with %w.
var (
	// ErrMapping marks a raw record that could not be mapped to the CDM
	ErrMapping = errors.New("mapping error")

	// ErrConflictAmbiguity marks a field no precedence strategy could settle
	ErrConflictAmbiguity = errors.New("conflict ambiguity")

	// ErrRuleIndeterminate marks a rule whose inputs were unknown or ambiguous
	ErrRuleIndeterminate = errors.New("rule indeterminate")

	// ErrScorerUnavailable marks a scorer timeout or failure
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrDuplicateDecision marks an attempt to rewrite the decision log
	ErrDuplicateDecision = errors.New("duplicate decision")

	// ErrConfig marks invalid mapping, rule or policy configuration
	ErrConfig = errors.New("invalid configuration")
)
