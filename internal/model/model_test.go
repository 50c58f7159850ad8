package model

import (
	"errors"
	"testing"
	"time"
)

func TestMoneyString(t *testing.T) {
	tests := []struct {
		in   Money
		want string
	}{
		{0, "0.00"},
		{12550, "125.50"},
		{5, "0.05"},
		{-1999, "-19.99"},
		{-9223372036854775808, "-92233720368547758.08"},
		{9223372036854775807, "92233720368547758.07"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Money(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

func TestValueKey(t *testing.T) {
	d1 := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 7, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		a, b  any
		equal bool
	}{
		{"same string", "CO-50", "CO-50", true},
		{"different string", "CO-50", "CO-197", false},
		{"money", Money(100), Money(100), true},
		{"dates ignore time of day", d1, d2, true},
		{"diagnosis sets are unordered", []string{"E11.9", "I10"}, []string{"I10", "E11.9"}, true},
		{"procedures are ordered", []ProcedureCode{{Code: "99213"}, {Code: "93000"}}, []ProcedureCode{{Code: "93000"}, {Code: "99213"}}, false},
		{"modifiers matter", []ProcedureCode{{Code: "99213", Modifiers: []string{"25"}}}, []ProcedureCode{{Code: "99213"}}, false},
		{"string vs money", "100", Money(100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueKey(tt.a) == ValueKey(tt.b); got != tt.equal {
				t.Errorf("ValueKey equality = %v, want %v (%q vs %q)", got, tt.equal, ValueKey(tt.a), ValueKey(tt.b))
			}
		})
	}
}

func TestRawRecordFingerprint(t *testing.T) {
	a := RawRecord{
		SourceID:   "alpha",
		IngestedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Payload:    map[string]any{"claim_id": "A123", "amount": "125.00"},
	}
	b := a
	b.IngestedAt = a.IngestedAt.Add(48 * time.Hour)

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should not depend on ingest timestamp")
	}

	c := a
	c.SourceID = "beta"
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprint should depend on source id")
	}

	d := RawRecord{SourceID: "alpha", Payload: map[string]any{"claim_id": "A124", "amount": "125.00"}}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("fingerprint should depend on payload")
	}
}

func TestCanonicalClaimValidate(t *testing.T) {
	prov := Provenance{SourceID: "alpha", Path: "denial_code"}

	tests := []struct {
		name    string
		claim   CanonicalClaim
		wantErr bool
	}{
		{
			name: "valid",
			claim: CanonicalClaim{
				ClaimID: "c1",
				Sources: []string{"alpha"},
				Fields: map[Field]FieldValue{
					FieldDenialCode: Known("CO-50", prov),
					FieldPayerID:    Unknown(),
					FieldPatientRef: {State: StateAmbiguous},
				},
			},
		},
		{
			name:    "missing claim id",
			claim:   CanonicalClaim{},
			wantErr: true,
		},
		{
			name: "provenance names non-contributing source",
			claim: CanonicalClaim{
				ClaimID: "c1",
				Sources: []string{"beta"},
				Fields:  map[Field]FieldValue{FieldDenialCode: Known("CO-50", prov)},
			},
			wantErr: true,
		},
		{
			name: "unknown field with value",
			claim: CanonicalClaim{
				ClaimID: "c1",
				Sources: []string{"alpha"},
				Fields:  map[Field]FieldValue{FieldPayerID: {State: StateUnknown, Value: "AETNA"}},
			},
			wantErr: true,
		},
		{
			name: "known without value",
			claim: CanonicalClaim{
				ClaimID: "c1",
				Sources: []string{"alpha"},
				Fields:  map[Field]FieldValue{FieldPayerID: {State: StateKnown, Provenance: &prov}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.claim.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalClaimAccessors(t *testing.T) {
	prov := Provenance{SourceID: "alpha"}
	c := CanonicalClaim{
		ClaimID: "c1",
		Sources: []string{"alpha"},
		Fields: map[Field]FieldValue{
			FieldBilledAmount:   Known(Money(12500), prov),
			FieldDenialCode:     Known("CO-50", prov),
			FieldPayerID:        {State: StateAmbiguous},
			FieldDiagnosisCodes: Known([]string{"I10"}, prov),
		},
	}

	if m, ok := c.BilledAmount(); !ok || m != 12500 {
		t.Errorf("BilledAmount() = %v, %v", m, ok)
	}
	if _, ok := c.PayerID(); ok {
		t.Error("ambiguous payer should not be readable")
	}
	if _, ok := c.AllowedAmount(); ok {
		t.Error("absent field should read as unknown")
	}
	if got := c.Ambiguous(); len(got) != 1 || got[0] != FieldPayerID {
		t.Errorf("Ambiguous() = %v", got)
	}
	if c.State(FieldSubmittedAt) != StateUnknown {
		t.Error("absent field should have unknown state")
	}
}

func TestDecisionPolicyValidate(t *testing.T) {
	rules := []string{"window", "status"}

	tests := []struct {
		name    string
		policy  DecisionPolicy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"review above accept", DecisionPolicy{AutoAcceptThreshold: 0.5, ReviewLow: 0.6}, true},
		{"threshold above one", DecisionPolicy{AutoAcceptThreshold: 1.2}, true},
		{"negative review", DecisionPolicy{AutoAcceptThreshold: 0.5, ReviewLow: -0.1}, true},
		{"known veto", DecisionPolicy{AutoAcceptThreshold: 0.8, ReviewLow: 0.4, VetoRuleIDs: []string{"window"}}, false},
		{"unknown veto", DecisionPolicy{AutoAcceptThreshold: 0.8, ReviewLow: 0.4, VetoRuleIDs: []string{"missing"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate(rules)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestPrecedencePolicy(t *testing.T) {
	p := PrecedencePolicy{
		Strategies:         []Strategy{StrategyAuthoritative, StrategyMostRecent},
		Authoritative:      map[Category][]string{CategoryDenial: {"payer_feed"}},
		FieldAuthoritative: map[Field][]string{FieldDenialReasonText: {"emr"}},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if got := p.AuthoritativeFor(FieldDenialCode); len(got) != 1 || got[0] != "payer_feed" {
		t.Errorf("AuthoritativeFor(denial_code) = %v", got)
	}
	if got := p.AuthoritativeFor(FieldDenialReasonText); len(got) != 1 || got[0] != "emr" {
		t.Errorf("field override not applied: %v", got)
	}

	bad := PrecedencePolicy{Strategies: []Strategy{"coin_flip"}}
	if err := bad.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for unknown strategy, got %v", err)
	}
}

func TestMappingErrorUnwrap(t *testing.T) {
	var err error = MappingError{SourceID: "alpha", Field: FieldBilledAmount, Severity: SeverityFatal, Reason: "not numeric"}
	if !errors.Is(err, ErrMapping) {
		t.Error("MappingError should unwrap to ErrMapping")
	}
}

func TestInferenceResultErr(t *testing.T) {
	p := 0.4
	if err := (InferenceResult{Score: &p}).Err(); err != nil {
		t.Errorf("scored result: Err() = %v", err)
	}

	err := InferenceResult{Reason: "scorer unavailable: timeout after 2s"}.Err()
	if !errors.Is(err, ErrScorerUnavailable) {
		t.Fatalf("Err() = %v, want ErrScorerUnavailable", err)
	}
	if err.Error() != "scorer unavailable: scorer unavailable: timeout after 2s" {
		t.Errorf("Err() = %q", err.Error())
	}
}
