package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/decide"
	"github.com/ppiankov/resubmit/internal/ledger"
	"github.com/ppiankov/resubmit/internal/mapper"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/resolve"
	"github.com/ppiankov/resubmit/internal/rules"
	"github.com/ppiankov/resubmit/internal/score"
	"github.com/ppiankov/resubmit/internal/store"
	"github.com/ppiankov/resubmit/internal/worker"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Phases reported in PipelineError
const (
	PhaseConfig = "config"
	PhaseStore  = "store"
	PhaseMap    = "map"
	PhaseDecide = "decide"
)

// Deps are the components a pipeline runs. All are required.
type Deps struct {
	Mapper       *mapper.Mapper
	Resolver     *resolve.Resolver
	Ruleset      *rules.Ruleset
	Scorer       score.Scorer
	Orchestrator *decide.Orchestrator
	Ledger       *ledger.Ledger
	Records      store.RecordStore
	Quarantine   store.QuarantineSink
	Audit        store.AuditSink
}

// Options tune a pipeline
type Options struct {
	Workers      int
	ScoreTimeout time.Duration
	AsOf         time.Time        // Rule reference date, zero means the run date
	Now          func() time.Time // Clock for run timestamps
}

// Pipeline turns batches of raw records into eligibility decisions
type Pipeline struct {
	deps Deps
	opts Options
	log  zerolog.Logger

	// Runs are serialized so two runs never decide the same claim at once
	mu sync.Mutex
}

// New checks the dependencies and builds a pipeline
func New(deps Deps, opts Options, log zerolog.Logger) (*Pipeline, error) {
	switch {
	case deps.Mapper == nil, deps.Resolver == nil, deps.Ruleset == nil, deps.Scorer == nil,
		deps.Orchestrator == nil, deps.Ledger == nil, deps.Records == nil,
		deps.Quarantine == nil, deps.Audit == nil:
		return nil, &PipelineError{Phase: PhaseConfig, Err: errors.New("missing pipeline dependency")}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{deps: deps, opts: opts, log: log}, nil
}

// Ledger returns the decision ledger
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.deps.Ledger
}

// Report is the outcome of one run
type Report struct {
	Summary model.RunSummary `json:"summary"`

	// Decisions made in this run, by claim id
	Decisions []model.EligibilityDecision `json:"decisions"`

	// Claims of this run whose current decision is eligible
	Candidates []store.ResubmissionCandidate `json:"candidates"`
}

// Run ingests a batch. Records that fail mapping are quarantined, accepted
// records are stored, then every claim the batch touched is re-resolved
// from all of its records and decided on the worker pool. Per-claim
// failures are counted, never fatal. A cancelled run returns the partial
// report along with a PipelineError.
func (p *Pipeline) Run(ctx context.Context, batch []model.RawRecord) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.opts.Now()
	report := &Report{Summary: model.RunSummary{
		RunID:           uuid.NewString(),
		StartedAt:       start.UTC(),
		RecordsBySource: make(map[string]int),
	}}
	sum := &report.Summary
	log := p.log.With().Str("run_id", sum.RunID).Logger()

	log.Info().Int("records", len(batch)).Msg("starting map")
	affected, err := p.ingest(ctx, batch, sum)
	if err != nil {
		return report, err
	}
	log.Info().
		Int("quarantined", sum.Quarantined).
		Int("duplicates", sum.Duplicates).
		Int("mapping_warnings", sum.MappingWarnings).
		Int("claims", len(affected)).
		Msg("map complete")

	asOf := p.opts.AsOf
	if asOf.IsZero() {
		asOf = start
	}
	engine, err := rules.NewEngine(p.deps.Ruleset, asOf)
	if err != nil {
		return report, &PipelineError{Phase: PhaseConfig, Err: err}
	}

	jobs := make([]worker.Job, 0, len(affected))
	for _, claimID := range affected {
		jobs = append(jobs, &claimJob{
			p:          p,
			runID:      sum.RunID,
			claimID:    claimID,
			candidates: p.remap(claimID, log),
			engine:     engine,
			log:        log.With().Str("claim_id", claimID).Logger(),
		})
	}
	sum.Claims = len(jobs)

	done, runErr := worker.NewBatch(p.opts.Workers).Run(ctx, jobs, func(r worker.Result) {
		p.collect(report, r.(*claimResult))
	})
	sum.Cancelled += len(jobs) - done

	sort.Slice(report.Decisions, func(i, j int) bool { return report.Decisions[i].ClaimID < report.Decisions[j].ClaimID })
	sort.Slice(report.Candidates, func(i, j int) bool { return report.Candidates[i].ClaimID < report.Candidates[j].ClaimID })
	sum.Duration = p.opts.Now().Sub(start)

	log.Info().
		Int("eligible", sum.Eligible).
		Int("ineligible", sum.Ineligible).
		Int("needs_review", sum.NeedsReview).
		Int("unchanged", sum.Unchanged).
		Int("superseded", sum.Superseded).
		Int("failed", sum.Failed).
		Int("cancelled", sum.Cancelled).
		Str("total_duration", sum.Duration.String()).
		Msg("run complete")

	if runErr != nil {
		return report, &PipelineError{Phase: PhaseDecide, Err: runErr}
	}
	if sum.Cancelled > 0 && ctx.Err() != nil {
		return report, &PipelineError{Phase: PhaseDecide, Err: ctx.Err()}
	}
	return report, nil
}

// ingest maps and stores the batch, returning the sorted ids of every claim
// it touched. Duplicates still count as touched so a repeated batch reports
// its claims as unchanged.
func (p *Pipeline) ingest(ctx context.Context, batch []model.RawRecord, sum *model.RunSummary) ([]string, error) {
	touched := make(map[string]bool)
	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return nil, &PipelineError{Phase: PhaseMap, Err: err}
		}
		sum.Records++
		sum.RecordsBySource[rec.SourceID]++

		cand, errs := p.deps.Mapper.Map(rec)
		if cand == nil {
			sum.Quarantined++
			entry := store.QuarantineEntry{
				RunID:         sum.RunID,
				Record:        rec,
				Fingerprint:   rec.Fingerprint(),
				Errors:        errs,
				QuarantinedAt: p.opts.Now().UTC(),
			}
			if err := p.deps.Quarantine.Quarantine(ctx, entry); err != nil {
				return nil, &PipelineError{Phase: PhaseStore, Err: fmt.Errorf("quarantine: %w", err)}
			}
			p.log.Warn().
				Str("source_id", rec.SourceID).
				Str("fingerprint", entry.Fingerprint).
				Int("errors", len(errs)).
				Msg("record quarantined")
			continue
		}

		for i := range cand.Warnings {
			sum.MappingWarnings++
			entry := store.AuditEntry{
				RunID:   sum.RunID,
				Kind:    store.AuditMappingWarning,
				ClaimID: cand.ClaimID,
				Warning: &cand.Warnings[i],
				At:      p.opts.Now().UTC(),
			}
			if err := p.deps.Audit.Audit(ctx, entry); err != nil {
				return nil, &PipelineError{Phase: PhaseStore, Err: fmt.Errorf("audit: %w", err)}
			}
		}

		added, err := p.deps.Records.Append(ctx, cand.ClaimID, rec)
		if err != nil {
			return nil, &PipelineError{Phase: PhaseStore, Err: fmt.Errorf("store record: %w", err)}
		}
		if !added {
			sum.Duplicates++
		}
		touched[cand.ClaimID] = true
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// remap maps every stored record of the claim. A stored record that no
// longer maps to this claim under the current mapping sets is skipped.
func (p *Pipeline) remap(claimID string, log zerolog.Logger) []model.Candidate {
	records := p.deps.Records.Records(claimID)
	out := make([]model.Candidate, 0, len(records))
	for _, rec := range records {
		cand, _ := p.deps.Mapper.Map(rec)
		if cand == nil || cand.ClaimID != claimID {
			log.Warn().
				Str("claim_id", claimID).
				Str("source_id", rec.SourceID).
				Msg("stored record no longer maps to claim, skipped")
			continue
		}
		out = append(out, *cand)
	}
	return out
}

// collect folds one claim result into the report. It runs on a single
// goroutine.
func (p *Pipeline) collect(report *Report, r *claimResult) {
	sum := &report.Summary
	switch {
	case r.cancelled:
		sum.Cancelled++
		return
	case r.err != nil:
		sum.Failed++
		return
	}

	sum.AmbiguousFields += r.ambiguous
	d := r.decision
	if r.unchanged {
		sum.Unchanged++
	} else {
		sum.Count(d.Eligibility)
		if d.Supersedes != "" {
			sum.Superseded++
		}
		if !d.Inference.Available() {
			sum.ScorerFailures++
		}
		report.Decisions = append(report.Decisions, *d)
	}

	if d.Eligibility == model.Eligible {
		report.Candidates = append(report.Candidates, store.NewResubmissionCandidate(r.claim, *d))
	}
}
