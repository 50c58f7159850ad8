package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

func raw(source string, payload map[string]any) model.RawRecord {
	return model.RawRecord{
		SourceID:   source,
		IngestedAt: time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC),
		Payload:    payload,
	}
}

func TestRecordStores(t *testing.T) {
	dir := t.TempDir()
	stores := map[string]func() RecordStore{
		"memory": func() RecordStore { return NewMemoryRecordStore() },
		"jsonl": func() RecordStore {
			s, err := NewJSONLRecordStore(dir)
			if err != nil {
				t.Fatalf("NewJSONLRecordStore: %v", err)
			}
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open()
			defer func() { _ = s.Close() }()

			a := raw("alpha", map[string]any{"claim_id": "A123", "amount": json.Number("350.00")})
			added, err := s.Append(ctx, "c-A123", a)
			if err != nil || !added {
				t.Fatalf("first append: %v %v", added, err)
			}

			// Same content, later ingest time: duplicate
			again := a
			again.IngestedAt = a.IngestedAt.Add(time.Hour)
			if added, _ := s.Append(ctx, "c-A123", again); added {
				t.Error("duplicate record was stored")
			}

			b := raw("beta", map[string]any{"id": "A123"})
			if added, _ := s.Append(ctx, "c-A123", b); !added {
				t.Error("distinct record rejected")
			}
			if got := s.Records("c-A123"); len(got) != 2 {
				t.Errorf("records = %d, want 2", len(got))
			}
			if ids := s.ClaimIDs(); len(ids) != 1 || ids[0] != "c-A123" {
				t.Errorf("ClaimIDs = %v", ids)
			}
		})
	}
}

func TestJSONLRecordStore_Reload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewJSONLRecordStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := raw("alpha", map[string]any{"claim_id": "A123", "amount": json.Number("350.00")})
	if _, err := s.Append(ctx, "c-A123", rec); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	// Torn trailing write
	f, _ := os.OpenFile(filepath.Join(dir, RecordsFile), os.O_APPEND|os.O_WRONLY, 0644)
	_, _ = f.WriteString(`{"claim_id":"c-B`)
	_ = f.Close()

	s, err = NewJSONLRecordStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got := s.Records("c-A123")
	if len(got) != 1 {
		t.Fatalf("records = %d, want 1", len(got))
	}
	if got[0].Fingerprint() != rec.Fingerprint() {
		t.Error("fingerprint changed across reload")
	}
	if _, ok := got[0].Payload["amount"].(json.Number); !ok {
		t.Errorf("amount decoded as %T, want json.Number", got[0].Payload["amount"])
	}
	if added, _ := s.Append(ctx, "c-A123", rec); added {
		t.Error("reloaded store accepted a duplicate")
	}
}

func TestJSONLSinks(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := NewJSONLQuarantine(dir)
	if err != nil {
		t.Fatal(err)
	}
	entry := QuarantineEntry{
		RunID:  "run-1",
		Record: raw("alpha", map[string]any{"amount": "abc"}),
		Errors: []model.MappingError{{SourceID: "alpha", Field: model.FieldBilledAmount, Severity: model.SeverityFatal, Reason: "not a number"}},
	}
	if err := q.Quarantine(ctx, entry); err != nil {
		t.Fatal(err)
	}
	_ = q.Close()

	a, err := NewJSONLAudit(dir)
	if err != nil {
		t.Fatal(err)
	}
	res := model.ConflictResolution{ClaimID: "c1", Field: model.FieldDenialCode, Outcome: model.OutcomeResolved}
	if err := a.Audit(ctx, AuditEntry{RunID: "run-1", Kind: AuditConflict, ClaimID: "c1", Resolution: &res}); err != nil {
		t.Fatal(err)
	}
	_ = a.Close()

	var got QuarantineEntry
	err = readLines(filepath.Join(dir, QuarantineFile), func(dec *json.Decoder) error { return dec.Decode(&got) })
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Errors) != 1 || got.Errors[0].Field != model.FieldBilledAmount {
		t.Errorf("quarantine entry = %+v", got)
	}

	var audit AuditEntry
	err = readLines(filepath.Join(dir, AuditFile), func(dec *json.Decoder) error { return dec.Decode(&audit) })
	if err != nil {
		t.Fatal(err)
	}
	if audit.Resolution == nil || audit.Resolution.Outcome != model.OutcomeResolved {
		t.Errorf("audit entry = %+v", audit)
	}
}

func TestWriteCandidates(t *testing.T) {
	dir := t.TempDir()
	s := 0.91
	claim := &model.CanonicalClaim{ClaimID: "c1", Fields: map[model.Field]model.FieldValue{
		model.FieldClaimNumber:      model.Known("A124", model.Provenance{}),
		model.FieldDenialReasonText: model.Known("Incorrect NPI", model.Provenance{}),
	}}
	d := model.EligibilityDecision{
		DecisionID:        "d1",
		ClaimID:           "c1",
		Eligibility:       model.Eligible,
		SourceIDs:         []string{"alpha"},
		RecommendedAction: "Review and correct 'Incorrect NPI' and resubmit",
		Inference:         model.InferenceResult{Score: &s},
	}

	path, err := WriteCandidates(dir, []ResubmissionCandidate{NewResubmissionCandidate(claim, d)})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []ResubmissionCandidate
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ResubmissionReason != "Incorrect NPI" || got[0].ClaimNumber != "A124" {
		t.Errorf("candidates = %+v", got)
	}

	// Empty export is an empty array, not null
	path, _ = WriteCandidates(t.TempDir(), nil)
	data, _ = os.ReadFile(path)
	if string(data) != "[]\n" {
		t.Errorf("empty export = %q", data)
	}
}
