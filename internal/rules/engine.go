package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// verdict is a three-valued predicate outcome
type verdict int

const (
	verdictFalse verdict = iota
	verdictTrue
	verdictIndeterminate
)

// Engine evaluates a compiled ruleset against canonical claims
type Engine struct {
	ruleset *Ruleset
	asOf    time.Time
}

// NewEngine compiles the ruleset and fixes the reference date for
// relative-date rules so evaluation is reproducible.
func NewEngine(rs *Ruleset, asOf time.Time) (*Engine, error) {
	if err := rs.Compile(); err != nil {
		return nil, err
	}
	return &Engine{ruleset: rs, asOf: model.DateOf(asOf)}, nil
}

// Ruleset returns the engine's rules
func (e *Engine) Ruleset() *Ruleset {
	return e.ruleset
}

// AsOf returns the reference date
func (e *Engine) AsOf() time.Time {
	return e.asOf
}

// Evaluate runs every rule against the claim. No rule short-circuits
// another; each produces exactly one result, in ruleset order.
func (e *Engine) Evaluate(claim *model.CanonicalClaim) []model.RuleResult {
	return Evaluate(claim, e.ruleset, e.asOf)
}

// Evaluate runs every rule of a compiled ruleset against the claim
func Evaluate(claim *model.CanonicalClaim, rs *Ruleset, asOf time.Time) []model.RuleResult {
	results := make([]model.RuleResult, 0, len(rs.Rules))
	for i := range rs.Rules {
		results = append(results, evaluateRule(claim, &rs.Rules[i], asOf))
	}
	return results
}

func evaluateRule(claim *model.CanonicalClaim, r *Rule, asOf time.Time) (result model.RuleResult) {
	result = model.RuleResult{RuleID: r.ID, Veto: r.IsVeto}

	defer func() {
		if rec := recover(); rec != nil {
			result.Passed = false
			result.Indeterminate = true
			result.Reason = fmt.Sprintf("indeterminate: predicate failed: %v", rec)
		}
	}()

	if len(r.Payers) > 0 {
		payer := readOperand(claim, string(model.FieldPayerID))
		if payer.state != model.StateKnown {
			result.Indeterminate = true
			result.Reason = indeterminateReason(payer)
			return result
		}
		if !member(payer.str, r.Payers) {
			result.Passed = true
			result.Reason = fmt.Sprintf("not applicable to payer %s", payer.str)
			return result
		}
	}

	v, detail := evalPredicate(claim, &r.When, asOf)
	switch v {
	case verdictTrue:
		result.Passed = true
		result.Reason = detail
	case verdictFalse:
		result.Reason = detail
	case verdictIndeterminate:
		result.Indeterminate = true
		result.Reason = detail
	}
	return result
}

func indeterminateReason(op operand) string {
	return fmt.Sprintf("indeterminate: field %s %s", op.name, op.state)
}

// evalPredicate applies Kleene logic: false dominates an "all", true
// dominates an "any", otherwise any indeterminate child makes the result
// indeterminate.
func evalPredicate(claim *model.CanonicalClaim, p *Predicate, asOf time.Time) (verdict, string) {
	switch {
	case len(p.All) > 0:
		var pending []string
		var passed []string
		for i := range p.All {
			v, d := evalPredicate(claim, &p.All[i], asOf)
			switch v {
			case verdictFalse:
				return verdictFalse, d
			case verdictIndeterminate:
				pending = append(pending, d)
			default:
				passed = append(passed, d)
			}
		}
		if len(pending) > 0 {
			return verdictIndeterminate, strings.Join(pending, "; ")
		}
		return verdictTrue, strings.Join(passed, "; ")

	case len(p.Any) > 0:
		var pending []string
		var failed []string
		for i := range p.Any {
			v, d := evalPredicate(claim, &p.Any[i], asOf)
			switch v {
			case verdictTrue:
				return verdictTrue, d
			case verdictIndeterminate:
				pending = append(pending, d)
			default:
				failed = append(failed, d)
			}
		}
		if len(pending) > 0 {
			return verdictIndeterminate, strings.Join(pending, "; ")
		}
		return verdictFalse, strings.Join(failed, "; ")

	case p.Not != nil:
		v, d := evalPredicate(claim, p.Not, asOf)
		switch v {
		case verdictTrue:
			return verdictFalse, "not: " + d
		case verdictFalse:
			return verdictTrue, "not: " + d
		}
		return v, d
	}

	op := readOperand(claim, p.Field)

	if p.Op == "present" {
		switch op.state {
		case model.StateKnown:
			return verdictTrue, fmt.Sprintf("%s is present", p.Field)
		case model.StateAmbiguous:
			return verdictIndeterminate, indeterminateReason(op)
		default:
			return verdictFalse, fmt.Sprintf("%s is missing", p.Field)
		}
	}

	if op.state != model.StateKnown {
		return verdictIndeterminate, indeterminateReason(op)
	}

	ok, detail := ops[p.Op].eval(p, op, asOf)
	if ok {
		return verdictTrue, detail
	}
	return verdictFalse, detail
}
