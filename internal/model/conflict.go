package model

import "fmt"

// Outcome of resolving one field across candidates
type Outcome string

const (
	OutcomeUnknown      Outcome = "unknown"       // No candidate carried a value
	OutcomeSingleSource Outcome = "single_source" // Exactly one candidate carried a value
	OutcomeAgreement    Outcome = "agreement"     // All values agreed
	OutcomeResolved     Outcome = "resolved"      // A precedence strategy picked a winner
	OutcomeAmbiguous    Outcome = "ambiguous"     // No strategy could pick a winner
)

// Strategy is a precedence rule for disagreeing values
type Strategy string

const (
	StrategyAuthoritative Strategy = "authoritative"
	StrategyMostRecent    Strategy = "most_recent"
	StrategyNonNull       Strategy = "non_null"
)

// Discard reasons
const (
	DiscardAuthoritative = "discarded_by_authoritative_source"
	DiscardMostRecent    = "discarded_by_most_recent"
	DiscardNonNull       = "discarded_by_non_null"
	DiscardAmbiguous     = "ambiguous"
	DiscardDuplicate     = "duplicate_of_winner"
)

// DiscardedValue is a candidate value that did not win
type DiscardedValue struct {
	SourceID string `json:"source_id"`
	Path     string `json:"path"`
	Value    any    `json:"value"`
	Reason   string `json:"reason"`
}

// ConflictResolution is the audit record of resolving one field
type ConflictResolution struct {
	ClaimID      string           `json:"claim_id"`
	Field        Field            `json:"field"`
	Outcome      Outcome          `json:"outcome"`
	Strategy     Strategy         `json:"strategy,omitempty"`
	WinnerSource string           `json:"winner_source,omitempty"`
	WinnerPath   string           `json:"winner_path,omitempty"`
	WinnerValue  any              `json:"winner_value,omitempty"`
	Discarded    []DiscardedValue `json:"discarded,omitempty"`
	NullSources  []string         `json:"null_sources,omitempty"`
}

// PrecedencePolicy configures conflict resolution
type PrecedencePolicy struct {
	Strategies         []Strategy            `yaml:"strategies" json:"strategies" mapstructure:"strategies"`
	Authoritative      map[Category][]string `yaml:"authoritative,omitempty" json:"authoritative,omitempty" mapstructure:"authoritative"`
	FieldAuthoritative map[Field][]string    `yaml:"field_authoritative,omitempty" json:"field_authoritative,omitempty" mapstructure:"field_authoritative"`
}

// DefaultPrecedence returns authoritative, then most recent, then non-null
func DefaultPrecedence() PrecedencePolicy {
	return PrecedencePolicy{
		Strategies: []Strategy{StrategyAuthoritative, StrategyMostRecent, StrategyNonNull},
	}
}

// AuthoritativeFor returns the authoritative sources for a field. A field
// override replaces the category entry.
func (p PrecedencePolicy) AuthoritativeFor(f Field) []string {
	if sources, ok := p.FieldAuthoritative[f]; ok {
		return sources
	}
	return p.Authoritative[f.Category()]
}

// Validate rejects unknown strategies, categories and fields
func (p PrecedencePolicy) Validate() error {
	if len(p.Strategies) == 0 {
		return fmt.Errorf("%w: precedence: no strategies", ErrConfig)
	}
	seen := make(map[Strategy]bool)
	for _, s := range p.Strategies {
		switch s {
		case StrategyAuthoritative, StrategyMostRecent, StrategyNonNull:
		default:
			return fmt.Errorf("%w: precedence: unknown strategy %q", ErrConfig, s)
		}
		if seen[s] {
			return fmt.Errorf("%w: precedence: duplicate strategy %q", ErrConfig, s)
		}
		seen[s] = true
	}
	for c := range p.Authoritative {
		if !c.Valid() {
			return fmt.Errorf("%w: precedence: unknown category %q", ErrConfig, c)
		}
	}
	for f := range p.FieldAuthoritative {
		if !f.Valid() {
			return fmt.Errorf("%w: precedence: unknown field %q", ErrConfig, f)
		}
	}
	return nil
}
