package resolve

import (
	"fmt"
	"sort"

	"github.com/ppiankov/resubmit/internal/model"
)

// Resolver merges the candidates of one claim into a canonical claim
type Resolver struct {
	policy    model.PrecedencePolicy
	authority *AuthorityIndex
}

// New creates a resolver for a validated precedence policy
func New(policy model.PrecedencePolicy) (*Resolver, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{
		policy:    policy,
		authority: NewAuthorityIndex(policy),
	}, nil
}

// contender is one candidate's value for the field being resolved
type contender struct {
	cand *model.Candidate
	fv   model.FieldValue
	key  string
}

func (c contender) known() bool {
	return c.fv.State == model.StateKnown
}

// Resolve produces the canonical claim and one resolution record per field.
// Fields are resolved independently; the result does not depend on the
// order of candidates.
func (r *Resolver) Resolve(claimID string, candidates []model.Candidate) (*model.CanonicalClaim, []model.ConflictResolution, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("resolve %s: no candidates", claimID)
	}
	for _, c := range candidates {
		if c.ClaimID != claimID {
			return nil, nil, fmt.Errorf("resolve %s: candidate from %s belongs to claim %s", claimID, c.SourceID, c.ClaimID)
		}
	}

	ordered := canonicalOrder(candidates)

	claim := &model.CanonicalClaim{
		ClaimID: claimID,
		Fields:  make(map[model.Field]model.FieldValue),
		Sources: sourceIDs(ordered),
	}

	fields := model.AllFields()
	resolutions := make([]model.ConflictResolution, 0, len(fields))
	for _, f := range fields {
		fv, res := r.resolveField(claimID, f, ordered)
		claim.Fields[f] = fv
		resolutions = append(resolutions, res)
	}

	if err := claim.Validate(); err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", claimID, err)
	}
	return claim, resolutions, nil
}

func (r *Resolver) resolveField(claimID string, field model.Field, ordered []model.Candidate) (model.FieldValue, model.ConflictResolution) {
	res := model.ConflictResolution{ClaimID: claimID, Field: field}

	contenders := make([]contender, 0, len(ordered))
	for i := range ordered {
		fv := ordered[i].Field(field)
		contenders = append(contenders, contender{cand: &ordered[i], fv: fv, key: model.ValueKey(fv.Value)})
	}

	res.NullSources = nullSources(contenders)
	known := filter(contenders, contender.known)

	if len(known) == 0 {
		res.Outcome = model.OutcomeUnknown
		return model.Unknown(), res
	}

	if len(distinctKeys(known)) == 1 {
		winner := r.representative(field, known)
		res.Outcome = model.OutcomeAgreement
		if len(sourceSet(known)) == 1 {
			res.Outcome = model.OutcomeSingleSource
		}
		setWinner(&res, winner)
		return winner.fv, res
	}

	set := contenders
	for _, strategy := range r.policy.Strategies {
		narrowed, reason := r.apply(strategy, field, set)
		if len(filter(narrowed, contender.known)) == 0 {
			continue
		}

		for _, c := range set {
			if c.known() && !contains(narrowed, c) {
				res.Discarded = append(res.Discarded, discarded(c, reason))
			}
		}
		set = narrowed

		survivors := filter(set, contender.known)
		if len(distinctKeys(survivors)) == 1 {
			winner := r.representative(field, survivors)
			res.Outcome = model.OutcomeResolved
			res.Strategy = strategy
			setWinner(&res, winner)
			markDuplicates(&res, winner)
			return winner.fv, res
		}
	}

	res.Outcome = model.OutcomeAmbiguous
	for _, c := range set {
		if c.known() {
			res.Discarded = append(res.Discarded, discarded(c, model.DiscardAmbiguous))
		}
	}
	return model.FieldValue{State: model.StateAmbiguous}, res
}

// apply narrows the contender set with one strategy
func (r *Resolver) apply(strategy model.Strategy, field model.Field, set []contender) ([]contender, string) {
	switch strategy {
	case model.StrategyAuthoritative:
		return filter(set, func(c contender) bool {
			return r.authority.IsAuthoritative(field, c.cand.SourceID)
		}), model.DiscardAuthoritative

	case model.StrategyMostRecent:
		known := filter(set, contender.known)
		if len(known) == 0 {
			return nil, model.DiscardMostRecent
		}
		latest := known[0].cand.IngestedAt
		for _, c := range known[1:] {
			if c.cand.IngestedAt.After(latest) {
				latest = c.cand.IngestedAt
			}
		}
		return filter(known, func(c contender) bool {
			return c.cand.IngestedAt.Equal(latest)
		}), model.DiscardMostRecent

	case model.StrategyNonNull:
		return filter(set, contender.known), model.DiscardNonNull
	}
	return set, ""
}

// representative picks the provenance for an agreed value: an authoritative
// source first, then the latest ingest, then canonical order.
func (r *Resolver) representative(field model.Field, agreeing []contender) contender {
	pool := agreeing
	if auth := filter(agreeing, func(c contender) bool {
		return r.authority.IsAuthoritative(field, c.cand.SourceID)
	}); len(auth) > 0 {
		pool = auth
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.cand.IngestedAt.After(best.cand.IngestedAt) {
			best = c
		}
	}
	return best
}

func setWinner(res *model.ConflictResolution, winner contender) {
	res.WinnerSource = winner.cand.SourceID
	res.WinnerValue = winner.fv.Value
	if winner.fv.Provenance != nil {
		res.WinnerPath = winner.fv.Provenance.Path
	}
}

// markDuplicates relabels discarded values that equal the winning value;
// they lost to a strategy but carried the same data
func markDuplicates(res *model.ConflictResolution, winner contender) {
	for i := range res.Discarded {
		if model.ValueKey(res.Discarded[i].Value) == winner.key {
			res.Discarded[i].Reason = model.DiscardDuplicate
		}
	}
}

func discarded(c contender, reason string) model.DiscardedValue {
	d := model.DiscardedValue{SourceID: c.cand.SourceID, Value: c.fv.Value, Reason: reason}
	if c.fv.Provenance != nil {
		d.Path = c.fv.Provenance.Path
	}
	return d
}

func filter(in []contender, keep func(contender) bool) []contender {
	var out []contender
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func contains(set []contender, c contender) bool {
	for _, s := range set {
		if s.cand == c.cand {
			return true
		}
	}
	return false
}

func distinctKeys(cs []contender) map[string]bool {
	keys := make(map[string]bool)
	for _, c := range cs {
		keys[c.key] = true
	}
	return keys
}

func sourceSet(cs []contender) map[string]bool {
	set := make(map[string]bool)
	for _, c := range cs {
		set[c.cand.SourceID] = true
	}
	return set
}

func nullSources(cs []contender) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range cs {
		if !c.known() && !seen[c.cand.SourceID] {
			seen[c.cand.SourceID] = true
			out = append(out, c.cand.SourceID)
		}
	}
	return out
}

func sourceIDs(cands []model.Candidate) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cands {
		if !seen[c.SourceID] {
			seen[c.SourceID] = true
			out = append(out, c.SourceID)
		}
	}
	sort.Strings(out)
	return out
}
