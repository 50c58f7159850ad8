package rules

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/ppiankov/resubmit/internal/model"
	"gopkg.in/yaml.v3"
)

// Ruleset is a versioned list of deterministic eligibility rules
type Ruleset struct {
	Version string `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

// Rule is one declarative eligibility check
type Rule struct {
	ID          string    `yaml:"id" json:"id"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	IsVeto      bool      `yaml:"is_veto,omitempty" json:"is_veto,omitempty"`
	Payers      []string  `yaml:"payers,omitempty" json:"payers,omitempty"` // Applies only to these payers
	When        Predicate `yaml:"when" json:"when"`
}

// Predicate is a leaf comparison or a combinator over predicates
type Predicate struct {
	Field     string      `yaml:"field,omitempty" json:"field,omitempty"`
	Op        string      `yaml:"op,omitempty" json:"op,omitempty"`
	Value     string      `yaml:"value,omitempty" json:"value,omitempty"`         // eq, ne, matches
	Values    []string    `yaml:"values,omitempty" json:"values,omitempty"`       // in, not_in, contains_any
	Threshold *float64    `yaml:"threshold,omitempty" json:"threshold,omitempty"` // amounts in dollars, counts
	Days      int         `yaml:"days,omitempty" json:"days,omitempty"`           // within_days, older_than_days
	All       []Predicate `yaml:"all,omitempty" json:"all,omitempty"`
	Any       []Predicate `yaml:"any,omitempty" json:"any,omitempty"`
	Not       *Predicate  `yaml:"not,omitempty" json:"not,omitempty"`

	re *regexp.Regexp
}

// IDs returns the rule ids in order
func (rs *Ruleset) IDs() []string {
	ids := make([]string, len(rs.Rules))
	for i, r := range rs.Rules {
		ids[i] = r.ID
	}
	return ids
}

// Rule returns the rule with the given id
func (rs *Ruleset) Rule(id string) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Compile validates the ruleset and prepares predicates for evaluation.
// Every error wraps model.ErrConfig.
func (rs *Ruleset) Compile() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("%w: ruleset has no rules", model.ErrConfig)
	}
	seen := make(map[string]bool)
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d has no id", model.ErrConfig, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", model.ErrConfig, r.ID)
		}
		seen[r.ID] = true
		if err := r.When.compile(); err != nil {
			return fmt.Errorf("%w: rule %s: %v", model.ErrConfig, r.ID, err)
		}
	}
	return nil
}

func (p *Predicate) compile() error {
	combinators := 0
	if len(p.All) > 0 {
		combinators++
	}
	if len(p.Any) > 0 {
		combinators++
	}
	if p.Not != nil {
		combinators++
	}

	if combinators > 0 {
		if combinators > 1 || p.Field != "" || p.Op != "" {
			return fmt.Errorf("predicate mixes combinators and comparisons")
		}
		for i := range p.All {
			if err := p.All[i].compile(); err != nil {
				return err
			}
		}
		for i := range p.Any {
			if err := p.Any[i].compile(); err != nil {
				return err
			}
		}
		if p.Not != nil {
			return p.Not.compile()
		}
		return nil
	}

	kind, ok := operandKinds[p.Field]
	if !ok {
		return fmt.Errorf("unknown field %q", p.Field)
	}
	def, ok := ops[p.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", p.Op)
	}
	if !def.kinds[kind] {
		return fmt.Errorf("op %s does not apply to field %s", p.Op, p.Field)
	}

	switch def.arg {
	case argValue:
		if p.Value == "" {
			return fmt.Errorf("op %s on %s needs a value", p.Op, p.Field)
		}
	case argValues:
		if len(p.Values) == 0 {
			return fmt.Errorf("op %s on %s needs values", p.Op, p.Field)
		}
	case argThreshold:
		if p.Threshold == nil {
			return fmt.Errorf("op %s on %s needs a threshold", p.Op, p.Field)
		}
	case argDays:
		if p.Days <= 0 {
			return fmt.Errorf("op %s on %s needs positive days", p.Op, p.Field)
		}
	}

	if p.Op == "matches" {
		re, err := regexp.Compile(p.Value)
		if err != nil {
			return fmt.Errorf("bad pattern for %s: %v", p.Field, err)
		}
		p.re = re
	}
	return nil
}

// Load reads and compiles a ruleset from YAML
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	return Parse(data)
}

// Parse decodes and compiles a ruleset. Unknown keys are rejected.
func Parse(data []byte) (*Ruleset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rs Ruleset
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("%w: parse ruleset: %v", model.ErrConfig, err)
	}
	if err := rs.Compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}
