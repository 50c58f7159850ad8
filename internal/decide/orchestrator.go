package decide

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// Orchestrator combines rule results and inference into a decision under
// a fixed policy
type Orchestrator struct {
	policy         model.DecisionPolicy
	rulesetVersion string
	now            func() time.Time
}

// New validates the policy against the ruleset's rule ids
func New(policy model.DecisionPolicy, ruleIDs []string, rulesetVersion string) (*Orchestrator, error) {
	if err := policy.Validate(ruleIDs); err != nil {
		return nil, err
	}
	return &Orchestrator{policy: policy, rulesetVersion: rulesetVersion, now: time.Now}, nil
}

// WithClock replaces the decision timestamp source
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Policy returns the active policy
func (o *Orchestrator) Policy() model.DecisionPolicy {
	return o.policy
}

// Fingerprint returns the input fingerprint for claim under this
// orchestrator's ruleset and policy
func (o *Orchestrator) Fingerprint(claim *model.CanonicalClaim, modelVersion string) string {
	return Fingerprint(claim, o.rulesetVersion, o.policy.Version, modelVersion)
}

// Unchanged reports whether prior already decided these exact inputs. A
// prior decision made without a score is retried.
func Unchanged(prior *model.EligibilityDecision, fingerprint string) bool {
	return prior != nil && prior.InputFingerprint == fingerprint && prior.Inference.Available()
}

// Outcome is a decision plus the error taxonomy behind it
type Outcome struct {
	Decision *model.EligibilityDecision

	// Causes lists taxonomy errors (ambiguity, indeterminate rules,
	// unavailable scorer) that pushed the claim away from eligible
	Causes []error
}

// Decide applies the policy in order:
//  1. a veto rule not passed makes the claim ineligible
//  2. ambiguous fields send it to review
//  3. all rules passed and score at or above auto-accept makes it eligible
//  4. a missing score, a score in the review band, or an indeterminate
//     rule sends it to review
//  5. anything else is ineligible
//
// prior is the claim's current decision, nil if none; the new decision
// supersedes it.
func (o *Orchestrator) Decide(claim *model.CanonicalClaim, results []model.RuleResult, inf model.InferenceResult, fingerprint string, prior *model.EligibilityDecision) Outcome {
	eligibility, rationale, causes := o.verdict(claim, results, inf)

	supersedes := ""
	if prior != nil {
		supersedes = prior.DecisionID
		rationale = append(rationale, fmt.Sprintf("supersedes decision %s (%s): inputs changed", prior.DecisionID, prior.Eligibility))
	}

	d := &model.EligibilityDecision{
		DecisionID:           DecisionID(claim.ClaimID, fingerprint, supersedes),
		ClaimID:              claim.ClaimID,
		Eligibility:          eligibility,
		DeterministicResults: o.markVetoes(results),
		Inference:            inf,
		Rationale:            rationale,
		DecidedAt:            o.now().UTC(),
		Supersedes:           supersedes,
		InputFingerprint:     fingerprint,
		PolicyVersion:        o.policy.Version,
		RulesetVersion:       o.rulesetVersion,
		SourceIDs:            append([]string(nil), claim.Sources...),
	}
	d.RecommendedAction = RecommendedAction(claim, d)

	return Outcome{Decision: d, Causes: causes}
}

func (o *Orchestrator) isVeto(r model.RuleResult) bool {
	return r.Veto || o.policy.IsVeto(r.RuleID)
}

func (o *Orchestrator) markVetoes(results []model.RuleResult) []model.RuleResult {
	out := make([]model.RuleResult, len(results))
	for i, r := range results {
		r.Veto = o.isVeto(r)
		out[i] = r
	}
	return out
}

func (o *Orchestrator) verdict(claim *model.CanonicalClaim, results []model.RuleResult, inf model.InferenceResult) (model.Eligibility, []string, []error) {
	var rationale []string
	var causes []error

	// 1. Vetoes. An indeterminate veto has not passed.
	for _, r := range results {
		if !o.isVeto(r) || r.Passed {
			continue
		}
		if r.Indeterminate {
			rationale = append(rationale, fmt.Sprintf("veto rule %s not satisfied: %s", r.RuleID, r.Reason))
			causes = append(causes, fmt.Errorf("%w: %s", model.ErrRuleIndeterminate, r.RuleID))
		} else {
			rationale = append(rationale, fmt.Sprintf("veto rule %s failed: %s", r.RuleID, r.Reason))
		}
	}
	if len(rationale) > 0 {
		return model.Ineligible, rationale, causes
	}

	// 2. Unresolved conflicts
	if amb := claim.Ambiguous(); len(amb) > 0 {
		names := make([]string, len(amb))
		for i, f := range amb {
			names[i] = string(f)
		}
		rationale = append(rationale, fmt.Sprintf("conflicting source values for %s", strings.Join(names, ", ")))
		causes = append(causes, fmt.Errorf("%w: %s", model.ErrConflictAmbiguity, strings.Join(names, ", ")))
		return model.NeedsReview, rationale, causes
	}

	var failed, indeterminate []model.RuleResult
	for _, r := range results {
		if o.isVeto(r) {
			continue
		}
		switch {
		case r.Indeterminate:
			indeterminate = append(indeterminate, r)
		case !r.Passed:
			failed = append(failed, r)
		}
	}

	// 3. Clean rules and a confident score
	if len(failed) == 0 && len(indeterminate) == 0 && inf.Score != nil && *inf.Score >= o.policy.AutoAcceptThreshold {
		rationale = append(rationale, fmt.Sprintf("all %d rules passed; score %.3f at or above auto-accept %.2f",
			len(results), *inf.Score, o.policy.AutoAcceptThreshold))
		return model.Eligible, rationale, nil
	}

	for _, r := range failed {
		rationale = append(rationale, fmt.Sprintf("rule %s failed: %s", r.RuleID, r.Reason))
	}

	// 4. Review
	review := false
	for _, r := range indeterminate {
		review = true
		rationale = append(rationale, fmt.Sprintf("rule %s %s", r.RuleID, r.Reason))
		causes = append(causes, fmt.Errorf("%w: %s", model.ErrRuleIndeterminate, r.RuleID))
	}
	switch {
	case inf.Score == nil:
		review = true
		rationale = append(rationale, inf.Reason)
		causes = append(causes, inf.Err())
	case *inf.Score >= o.policy.ReviewLow && *inf.Score < o.policy.AutoAcceptThreshold:
		review = true
		rationale = append(rationale, fmt.Sprintf("score %.3f in review band [%.2f, %.2f)",
			*inf.Score, o.policy.ReviewLow, o.policy.AutoAcceptThreshold))
	case *inf.Score < o.policy.ReviewLow:
		rationale = append(rationale, fmt.Sprintf("score %.3f below review threshold %.2f", *inf.Score, o.policy.ReviewLow))
	}
	if review {
		return model.NeedsReview, rationale, causes
	}

	// 5. Everything else
	return model.Ineligible, rationale, causes
}
