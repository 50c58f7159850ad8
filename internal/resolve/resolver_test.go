package resolve

import (
	"reflect"
	"testing"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

var t0 = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func candidate(source string, ingested time.Time, fields map[model.Field]any) model.Candidate {
	fp := source + "-" + ingested.Format(time.RFC3339)
	c := model.Candidate{
		ClaimID:           "claim-1",
		SourceID:          source,
		IngestedAt:        ingested,
		RecordFingerprint: fp,
		Fields:            make(map[model.Field]model.FieldValue),
	}
	for f, v := range fields {
		if v == nil {
			c.Fields[f] = model.Unknown()
			continue
		}
		c.Fields[f] = model.Known(v, model.Provenance{SourceID: source, Path: string(f), IngestedAt: ingested, RecordFingerprint: fp})
	}
	return c
}

func newResolver(t *testing.T, policy model.PrecedencePolicy) *Resolver {
	t.Helper()
	r, err := New(policy)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return r
}

func resolutionFor(rs []model.ConflictResolution, f model.Field) model.ConflictResolution {
	for _, r := range rs {
		if r.Field == f {
			return r
		}
	}
	return model.ConflictResolution{}
}

func TestResolve_AuthoritativeSourceWins(t *testing.T) {
	policy := model.DefaultPrecedence()
	policy.Authoritative = map[model.Category][]string{model.CategoryDenial: {"payer_feed"}}
	r := newResolver(t, policy)

	emr := candidate("emr", t0.Add(time.Hour), map[model.Field]any{
		model.FieldClaimNumber: "A123",
		model.FieldDenialCode:  "CO-50",
	})
	payer := candidate("payer_feed", t0, map[model.Field]any{
		model.FieldClaimNumber: "A123",
		model.FieldDenialCode:  "CO-197",
	})

	claim, resolutions, err := r.Resolve("claim-1", []model.Candidate{emr, payer})
	if err != nil {
		t.Fatal(err)
	}

	code, ok := claim.DenialCode()
	if !ok || code != "CO-197" {
		t.Fatalf("denial code = %q (%v), want CO-197", code, ok)
	}

	res := resolutionFor(resolutions, model.FieldDenialCode)
	if res.Outcome != model.OutcomeResolved || res.Strategy != model.StrategyAuthoritative {
		t.Errorf("resolution = %s/%s, want resolved/authoritative", res.Outcome, res.Strategy)
	}
	if res.WinnerSource != "payer_feed" {
		t.Errorf("winner = %s", res.WinnerSource)
	}
	if len(res.Discarded) != 1 || res.Discarded[0].SourceID != "emr" || res.Discarded[0].Value != "CO-50" ||
		res.Discarded[0].Reason != model.DiscardAuthoritative {
		t.Errorf("discarded = %+v", res.Discarded)
	}
	if p := claim.Field(model.FieldDenialCode).Provenance; p == nil || p.SourceID != "payer_feed" {
		t.Errorf("provenance = %+v", p)
	}
}

func TestResolve_DuplicateOfWinner(t *testing.T) {
	policy := model.DefaultPrecedence()
	policy.Authoritative = map[model.Category][]string{model.CategoryDenial: {"payer_feed"}}
	r := newResolver(t, policy)

	payer := candidate("payer_feed", t0, map[model.Field]any{model.FieldDenialCode: "CO-197"})
	emr := candidate("emr", t0.Add(time.Hour), map[model.Field]any{model.FieldDenialCode: "CO-197"})
	house := candidate("clearinghouse", t0.Add(2*time.Hour), map[model.Field]any{model.FieldDenialCode: "CO-50"})

	_, resolutions, err := r.Resolve("claim-1", []model.Candidate{house, emr, payer})
	if err != nil {
		t.Fatal(err)
	}
	res := resolutionFor(resolutions, model.FieldDenialCode)
	if res.WinnerSource != "payer_feed" || res.Strategy != model.StrategyAuthoritative {
		t.Fatalf("resolution = %+v", res)
	}

	reasons := make(map[string]string)
	for _, d := range res.Discarded {
		reasons[d.SourceID] = d.Reason
	}
	want := map[string]string{
		"emr":           model.DiscardDuplicate,
		"clearinghouse": model.DiscardAuthoritative,
	}
	if !reflect.DeepEqual(reasons, want) {
		t.Errorf("discard reasons = %v, want %v", reasons, want)
	}
}

func TestResolve_MostRecentWithoutAuthority(t *testing.T) {
	r := newResolver(t, model.DefaultPrecedence())

	older := candidate("alpha", t0, map[model.Field]any{model.FieldPayerID: "AETNA"})
	newer := candidate("beta", t0.Add(24*time.Hour), map[model.Field]any{model.FieldPayerID: "CIGNA"})

	claim, resolutions, err := r.Resolve("claim-1", []model.Candidate{older, newer})
	if err != nil {
		t.Fatal(err)
	}
	if payer, _ := claim.PayerID(); payer != "CIGNA" {
		t.Errorf("payer = %q, want CIGNA", payer)
	}
	res := resolutionFor(resolutions, model.FieldPayerID)
	if res.Strategy != model.StrategyMostRecent || res.Discarded[0].Reason != model.DiscardMostRecent {
		t.Errorf("resolution = %+v", res)
	}
}

func TestResolve_LatestNullDoesNotWin(t *testing.T) {
	r := newResolver(t, model.DefaultPrecedence())

	a := candidate("alpha", t0, map[model.Field]any{model.FieldPatientRef: "P001"})
	b := candidate("beta", t0.Add(time.Hour), map[model.Field]any{model.FieldPatientRef: "P002"})
	c := candidate("gamma", t0.Add(2*time.Hour), map[model.Field]any{model.FieldPatientRef: nil})

	claim, resolutions, _ := r.Resolve("claim-1", []model.Candidate{a, b, c})
	if ref, _ := claim.PatientRef(); ref != "P002" {
		t.Errorf("patient = %q, want P002", ref)
	}
	res := resolutionFor(resolutions, model.FieldPatientRef)
	if len(res.NullSources) != 1 || res.NullSources[0] != "gamma" {
		t.Errorf("null sources = %v", res.NullSources)
	}
}

func TestResolve_Ambiguous(t *testing.T) {
	r := newResolver(t, model.DefaultPrecedence())

	a := candidate("alpha", t0, map[model.Field]any{model.FieldBilledAmount: model.Money(10000)})
	b := candidate("beta", t0, map[model.Field]any{model.FieldBilledAmount: model.Money(12000)})

	claim, resolutions, err := r.Resolve("claim-1", []model.Candidate{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if claim.State(model.FieldBilledAmount) != model.StateAmbiguous {
		t.Fatalf("state = %s, want ambiguous", claim.State(model.FieldBilledAmount))
	}
	if got := claim.Ambiguous(); len(got) != 1 {
		t.Errorf("Ambiguous() = %v", got)
	}
	res := resolutionFor(resolutions, model.FieldBilledAmount)
	if res.Outcome != model.OutcomeAmbiguous || len(res.Discarded) != 2 {
		t.Errorf("resolution = %+v", res)
	}
	if err := claim.Validate(); err != nil {
		t.Errorf("ambiguous claim should still validate: %v", err)
	}
}

func TestResolve_TrivialOutcomes(t *testing.T) {
	r := newResolver(t, model.DefaultPrecedence())

	a := candidate("alpha", t0, map[model.Field]any{
		model.FieldClaimNumber: "A123",
		model.FieldClaimStatus: "denied",
		model.FieldPatientRef:  nil,
	})
	b := candidate("beta", t0.Add(time.Hour), map[model.Field]any{
		model.FieldClaimNumber: "A123",
		model.FieldDenialCode:  "CO-16",
	})

	claim, resolutions, err := r.Resolve("claim-1", []model.Candidate{a, b})
	if err != nil {
		t.Fatal(err)
	}

	if len(resolutions) != len(model.AllFields()) {
		t.Errorf("got %d resolutions, want one per field (%d)", len(resolutions), len(model.AllFields()))
	}

	tests := []struct {
		field model.Field
		want  model.Outcome
	}{
		{model.FieldClaimNumber, model.OutcomeAgreement},
		{model.FieldClaimStatus, model.OutcomeSingleSource},
		{model.FieldDenialCode, model.OutcomeSingleSource},
		{model.FieldPatientRef, model.OutcomeUnknown},
		{model.FieldEncounterRef, model.OutcomeUnknown},
	}
	for _, tt := range tests {
		if got := resolutionFor(resolutions, tt.field).Outcome; got != tt.want {
			t.Errorf("%s outcome = %s, want %s", tt.field, got, tt.want)
		}
	}

	// agreement takes provenance from the latest ingest
	if p := claim.Field(model.FieldClaimNumber).Provenance; p.SourceID != "beta" {
		t.Errorf("agreement provenance = %s, want beta", p.SourceID)
	}
	if !reflect.DeepEqual(claim.Sources, []string{"alpha", "beta"}) {
		t.Errorf("sources = %v", claim.Sources)
	}
	if err := claim.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestResolve_OrderIndependent(t *testing.T) {
	policy := model.DefaultPrecedence()
	policy.Authoritative = map[model.Category][]string{model.CategoryFinancial: {"gamma"}}
	r := newResolver(t, policy)

	cands := []model.Candidate{
		candidate("alpha", t0, map[model.Field]any{model.FieldDenialCode: "CO-50", model.FieldBilledAmount: model.Money(100)}),
		candidate("beta", t0.Add(time.Hour), map[model.Field]any{model.FieldDenialCode: "CO-197", model.FieldPayerID: "AETNA"}),
		candidate("gamma", t0.Add(time.Hour), map[model.Field]any{model.FieldDenialCode: "CO-16", model.FieldBilledAmount: model.Money(200)}),
		candidate("delta", t0, map[model.Field]any{model.FieldPayerID: "CIGNA"}),
	}

	wantClaim, wantRes, err := r.Resolve("claim-1", cands)
	if err != nil {
		t.Fatal(err)
	}

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, perm := range permutations {
		shuffled := make([]model.Candidate, len(cands))
		for i, j := range perm {
			shuffled[i] = cands[j]
		}
		gotClaim, gotRes, err := r.Resolve("claim-1", shuffled)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(gotClaim, wantClaim) {
			t.Errorf("permutation %v: claim differs", perm)
		}
		if !reflect.DeepEqual(gotRes, wantRes) {
			t.Errorf("permutation %v: resolutions differ", perm)
		}
	}
}

func TestResolve_DuplicateRecordCollapses(t *testing.T) {
	r := newResolver(t, model.DefaultPrecedence())

	a := candidate("alpha", t0, map[model.Field]any{model.FieldPayerID: "AETNA"})
	again := a
	again.IngestedAt = t0.Add(48 * time.Hour)

	claim, resolutions, _ := r.Resolve("claim-1", []model.Candidate{again, a})
	if res := resolutionFor(resolutions, model.FieldPayerID); res.Outcome != model.OutcomeSingleSource {
		t.Errorf("outcome = %s, want single_source", res.Outcome)
	}
	if len(claim.Sources) != 1 {
		t.Errorf("sources = %v", claim.Sources)
	}
}

func TestResolve_Errors(t *testing.T) {
	r := newResolver(t, model.DefaultPrecedence())

	if _, _, err := r.Resolve("claim-1", nil); err == nil {
		t.Error("expected error for no candidates")
	}

	other := candidate("alpha", t0, nil)
	other.ClaimID = "claim-2"
	if _, _, err := r.Resolve("claim-1", []model.Candidate{other}); err == nil {
		t.Error("expected error for mismatched claim id")
	}

	// A value whose provenance names a source outside the claim cannot be
	// carried into the canonical claim
	stray := candidate("alpha", t0, map[model.Field]any{model.FieldPayerID: "AETNA"})
	stray.Fields[model.FieldPayerID] = model.Known("AETNA", model.Provenance{SourceID: "ghost", Path: "payer"})
	claim, resolutions, err := r.Resolve("claim-1", []model.Candidate{stray})
	if err == nil || claim != nil || resolutions != nil {
		t.Errorf("Resolve() = %v, %v, %v; want validation error", claim, resolutions, err)
	}

	if _, err := New(model.PrecedencePolicy{}); err == nil {
		t.Error("expected error for empty precedence policy")
	}
}

func TestGroupByClaim(t *testing.T) {
	a := candidate("alpha", t0, nil)
	b := candidate("beta", t0, nil)
	c := candidate("alpha", t0, nil)
	c.ClaimID = "claim-0"

	groups := GroupByClaim([]model.Candidate{a, b, c})
	if len(groups["claim-1"]) != 2 || len(groups["claim-0"]) != 1 {
		t.Errorf("groups = %v", groups)
	}
	if ids := ClaimIDs(groups); !reflect.DeepEqual(ids, []string{"claim-0", "claim-1"}) {
		t.Errorf("ClaimIDs() = %v", ids)
	}
}
