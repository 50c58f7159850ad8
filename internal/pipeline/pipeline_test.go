package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/decide"
	"github.com/ppiankov/resubmit/internal/ledger"
	"github.com/ppiankov/resubmit/internal/mapper"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/resolve"
	"github.com/ppiankov/resubmit/internal/rules"
	"github.com/ppiankov/resubmit/internal/store"
)

var (
	asOf     = time.Date(2025, 7, 30, 0, 0, 0, 0, time.UTC)
	ingested = time.Date(2025, 7, 30, 9, 0, 0, 0, time.UTC)
)

const testRules = `
version: test-rules-1
rules:
  - id: status-denied
    is_veto: true
    when: {field: claim_status, op: eq, value: denied}
  - id: patient-known
    is_veto: true
    when: {field: patient_ref, op: present}
  - id: settled-period
    when: {field: submitted_at, op: older_than_days, days: 7}
`

// fixedScorer returns score after delay, or blocks until ctx is done when
// block is set
type fixedScorer struct {
	score   float64
	delay   time.Duration
	block   bool
	started chan struct{}
}

func (s *fixedScorer) Name() string         { return "fixed" }
func (s *fixedScorer) ModelVersion() string { return "fixed-v1" }

func (s *fixedScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block {
		<-ctx.Done()
		return model.InferenceResult{}, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.InferenceResult{}, ctx.Err()
		}
	}
	v := s.score
	return model.InferenceResult{Score: &v, ModelVersion: s.ModelVersion()}, nil
}

type fixture struct {
	p          *Pipeline
	ledger     *ledger.Ledger
	quarantine *store.MemoryQuarantine
	audit      *store.MemoryAudit
}

func newFixture(t *testing.T, scorer *fixedScorer, timeout time.Duration) *fixture {
	t.Helper()

	reg := mapper.NewRegistry()
	sets := []*model.MappingSet{
		{
			SourceID: "alpha",
			Mappings: []model.FieldMapping{
				{Field: model.FieldClaimNumber, Paths: []string{"claim_id"}, Required: true},
				{Field: model.FieldPatientRef, Paths: []string{"patient_id"}, Nullable: true},
				{Field: model.FieldProcedureCodes, Paths: []string{"procedure_code"}},
				{Field: model.FieldDenialReasonText, Paths: []string{"denial_reason"}, Nullable: true},
				{Field: model.FieldSubmittedAt, Paths: []string{"submitted_at"}},
				{Field: model.FieldClaimStatus, Paths: []string{"status"}},
				{Field: model.FieldBilledAmount, Paths: []string{"billed"}, CriticalForEligibility: true},
			},
		},
		{
			SourceID: "beta",
			Mappings: []model.FieldMapping{
				{Field: model.FieldClaimNumber, Paths: []string{"id"}, Required: true},
				{Field: model.FieldPatientRef, Paths: []string{"member"}, Nullable: true},
				{Field: model.FieldPayerID, Paths: []string{"payer"}},
				{Field: model.FieldDenialReasonText, Paths: []string{"error_msg"}, Nullable: true},
				{Field: model.FieldSubmittedAt, Paths: []string{"date"}},
				{Field: model.FieldClaimStatus, Paths: []string{"status"}},
			},
		},
	}
	for _, s := range sets {
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.SourceID, err)
		}
	}

	rs, err := rules.Parse([]byte(testRules))
	if err != nil {
		t.Fatalf("rules.Parse: %v", err)
	}
	resolver, err := resolve.New(model.DefaultPrecedence())
	if err != nil {
		t.Fatal(err)
	}
	orch, err := decide.New(model.DefaultPolicy(), rs.IDs(), rs.Version)
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.Open(context.Background(), ledger.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{ledger: l, quarantine: &store.MemoryQuarantine{}, audit: &store.MemoryAudit{}}
	f.p, err = New(Deps{
		Mapper:       mapper.New(reg),
		Resolver:     resolver,
		Ruleset:      rs,
		Scorer:       scorer,
		Orchestrator: orch,
		Ledger:       l,
		Records:      store.NewMemoryRecordStore(),
		Quarantine:   f.quarantine,
		Audit:        f.audit,
	}, Options{Workers: 4, ScoreTimeout: timeout, AsOf: asOf}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func alpha(payload map[string]any) model.RawRecord {
	return model.RawRecord{SourceID: "alpha", IngestedAt: ingested, Payload: payload}
}

func alphaBatch() []model.RawRecord {
	return []model.RawRecord{
		alpha(map[string]any{
			"claim_id": "A123", "patient_id": "P001", "procedure_code": "99213",
			"denial_reason": "Missing modifier", "submitted_at": "2025-07-01", "status": "denied", "billed": "150.00",
		}),
		alpha(map[string]any{
			"claim_id": "A125", "patient_id": nil, "procedure_code": "99215",
			"denial_reason": "Authorization expired", "submitted_at": "2025-07-05", "status": "denied", "billed": "90.00",
		}),
	}
}

func decisionFor(t *testing.T, f *fixture, claimNumber string) *model.EligibilityDecision {
	t.Helper()
	claimID := mapper.ClaimID(mapper.DefaultIdentity, map[model.Field]any{model.FieldClaimNumber: claimNumber})
	d, ok := f.ledger.Current(claimID)
	if !ok {
		t.Fatalf("no decision for %s", claimNumber)
	}
	return d
}

func TestRun_Decides(t *testing.T) {
	f := newFixture(t, &fixedScorer{score: 0.9}, time.Second)

	report, err := f.p.Run(context.Background(), alphaBatch())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	sum := report.Summary
	if sum.Records != 2 || sum.RecordsBySource["alpha"] != 2 || sum.Claims != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Eligible != 1 || sum.Ineligible != 1 || sum.Decided() != 2 {
		t.Errorf("eligible=%d ineligible=%d", sum.Eligible, sum.Ineligible)
	}

	if got := decisionFor(t, f, "A123").Eligibility; got != model.Eligible {
		t.Errorf("A123 = %s, want eligible", got)
	}
	if got := decisionFor(t, f, "A125").Eligibility; got != model.Ineligible {
		t.Errorf("A125 = %s, want ineligible", got)
	}

	if len(report.Candidates) != 1 || report.Candidates[0].ClaimNumber != "A123" {
		t.Fatalf("candidates = %+v", report.Candidates)
	}
	if report.Candidates[0].ResubmissionReason != "Missing modifier" {
		t.Errorf("reason = %q", report.Candidates[0].ResubmissionReason)
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, &fixedScorer{score: 0.9}, time.Second)
	ctx := context.Background()

	if _, err := f.p.Run(ctx, alphaBatch()); err != nil {
		t.Fatal(err)
	}
	events := len(f.ledger.Events())

	report, err := f.p.Run(ctx, alphaBatch())
	if err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	sum := report.Summary
	if sum.Duplicates != 2 || sum.Unchanged != 2 || sum.Decided() != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if len(report.Decisions) != 0 {
		t.Errorf("decisions = %d, want none", len(report.Decisions))
	}
	if got := len(f.ledger.Events()); got != events {
		t.Errorf("ledger events = %d, want %d", got, events)
	}
	if len(report.Candidates) != 1 {
		t.Errorf("unchanged eligible claim missing from candidates: %+v", report.Candidates)
	}
}

func TestRun_LateArrivalSupersedes(t *testing.T) {
	f := newFixture(t, &fixedScorer{score: 0.9}, time.Second)
	ctx := context.Background()

	if _, err := f.p.Run(ctx, alphaBatch()[:1]); err != nil {
		t.Fatal(err)
	}
	first := decisionFor(t, f, "A123")

	// Same claim from another system, adding the payer
	late := model.RawRecord{SourceID: "beta", IngestedAt: ingested.Add(time.Hour), Payload: map[string]any{
		"id": "A123", "member": "P001", "payer": "BCBS", "error_msg": "Missing modifier",
		"date": "2025-07-01T00:00:00", "status": "denied",
	}}
	report, err := f.p.Run(ctx, []model.RawRecord{late})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if report.Summary.Superseded != 1 {
		t.Errorf("superseded = %d, want 1", report.Summary.Superseded)
	}

	current := decisionFor(t, f, "A123")
	if current.Supersedes != first.DecisionID {
		t.Errorf("supersedes = %q, want %q", current.Supersedes, first.DecisionID)
	}
	if len(current.SourceIDs) != 2 {
		t.Errorf("sources = %v, want both systems", current.SourceIDs)
	}
	if h := f.ledger.History(current.ClaimID); len(h) != 2 {
		t.Errorf("history = %d, want 2", len(h))
	}
}

func TestRun_Quarantine(t *testing.T) {
	f := newFixture(t, &fixedScorer{score: 0.9}, time.Second)

	bad := alpha(map[string]any{
		"claim_id": "A200", "patient_id": "P9", "submitted_at": "2025-07-01", "status": "denied", "billed": "abc",
	})
	report, err := f.p.Run(context.Background(), []model.RawRecord{bad})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if report.Summary.Quarantined != 1 || report.Summary.Claims != 0 {
		t.Errorf("summary = %+v", report.Summary)
	}

	entries := f.quarantine.Entries()
	if len(entries) != 1 {
		t.Fatalf("quarantine entries = %d", len(entries))
	}
	var billed bool
	for _, e := range entries[0].Errors {
		if e.Field == model.FieldBilledAmount && e.Fatal() {
			billed = true
		}
	}
	if !billed {
		t.Errorf("errors = %v, want fatal billed_amount", entries[0].Errors)
	}
	if entries[0].RunID != report.Summary.RunID {
		t.Error("quarantine entry not tagged with run id")
	}
}

func TestRun_ScorerTimeout(t *testing.T) {
	f := newFixture(t, &fixedScorer{score: 0.9, delay: time.Second}, 20*time.Millisecond)
	ctx := context.Background()

	report, err := f.p.Run(ctx, alphaBatch()[:1])
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if report.Summary.NeedsReview != 1 || report.Summary.ScorerFailures != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
	d := decisionFor(t, f, "A123")
	if d.Inference.Score != nil || !strings.Contains(d.Inference.Reason, "timeout") {
		t.Errorf("inference = %+v", d.Inference)
	}

	// A decision made without a score is retried on the next run
	report, err = f.p.Run(ctx, alphaBatch()[:1])
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Unchanged != 0 || report.Summary.Superseded != 1 {
		t.Errorf("rerun summary = %+v", report.Summary)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		f := newFixture(t, &fixedScorer{score: 0.9}, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.p.Run(ctx, alphaBatch())
		var pe *PipelineError
		if !errors.As(err, &pe) || pe.Phase != PhaseMap || !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want map-phase cancellation", err)
		}
	})

	t.Run("during scoring", func(t *testing.T) {
		scorer := &fixedScorer{block: true, started: make(chan struct{}, 1)}
		f := newFixture(t, scorer, 0)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-scorer.started
			cancel()
		}()

		report, err := f.p.Run(ctx, alphaBatch())
		var pe *PipelineError
		if !errors.As(err, &pe) || pe.Phase != PhaseDecide || !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want decide-phase cancellation", err)
		}
		if report.Summary.Cancelled != 2 || report.Summary.Decided() != 0 {
			t.Errorf("summary = %+v", report.Summary)
		}
		if n := len(f.ledger.Events()); n != 0 {
			t.Errorf("ledger events = %d, interrupted claims must not be recorded", n)
		}
	})
}

func TestNew_MissingDeps(t *testing.T) {
	_, err := New(Deps{}, Options{}, zerolog.Nop())
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Phase != PhaseConfig {
		t.Errorf("New() = %v", err)
	}
}
