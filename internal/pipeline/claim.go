package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/decide"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/rules"
	"github.com/ppiankov/resubmit/internal/score"
	"github.com/ppiankov/resubmit/internal/store"
	"github.com/ppiankov/resubmit/internal/worker"
)

// claimJob decides one claim
type claimJob struct {
	p          *Pipeline
	runID      string
	claimID    string
	candidates []model.Candidate
	engine     *rules.Engine
	log        zerolog.Logger
}

type claimResult struct {
	claimID   string
	claim     *model.CanonicalClaim
	decision  *model.EligibilityDecision // New decision, or the current one when unchanged
	unchanged bool
	cancelled bool
	ambiguous int
	err       error
}

func (r *claimResult) GetError() error { return r.err }

// Execute resolves, evaluates, scores and decides the claim, then appends
// the decision to the ledger before returning
func (j *claimJob) Execute(ctx context.Context) worker.Result {
	res := &claimResult{claimID: j.claimID}
	if ctx.Err() != nil {
		res.cancelled = true
		return res
	}
	deps := j.p.deps

	claim, resolutions, err := deps.Resolver.Resolve(j.claimID, j.candidates)
	if err != nil {
		j.log.Error().Err(err).Msg("resolve failed")
		res.err = err
		return res
	}
	res.claim = claim
	res.ambiguous = len(claim.Ambiguous())

	if err := j.audit(ctx, resolutions); err != nil {
		j.log.Error().Err(err).Msg("audit failed")
		res.err = err
		return res
	}

	prior, _ := deps.Ledger.Current(j.claimID)
	fp := deps.Orchestrator.Fingerprint(claim, deps.Scorer.ModelVersion())
	if decide.Unchanged(prior, fp) {
		j.log.Debug().Str("decision_id", prior.DecisionID).Msg("inputs unchanged")
		res.decision = prior
		res.unchanged = true
		return res
	}

	results := j.engine.Evaluate(claim)

	inf := score.Invoke(ctx, deps.Scorer, claim, j.p.opts.ScoreTimeout)
	if ctx.Err() != nil {
		// Interrupted by run cancellation, not a scorer failure
		res.cancelled = true
		return res
	}

	out := deps.Orchestrator.Decide(claim, results, inf, fp, prior)
	for _, cause := range out.Causes {
		j.log.Debug().Err(cause).Msg("decision cause")
	}

	// The decision is made; persist it even if the run is cancelled meanwhile
	if err := deps.Ledger.Append(context.WithoutCancel(ctx), *out.Decision); err != nil {
		j.log.Error().Err(err).Msg("ledger append failed")
		res.err = fmt.Errorf("append decision: %w", err)
		return res
	}

	j.log.Info().
		Str("decision_id", out.Decision.DecisionID).
		Str("eligibility", string(out.Decision.Eligibility)).
		Bool("supersedes", out.Decision.Supersedes != "").
		Msg("claim decided")

	res.decision = out.Decision
	return res
}

// audit records every resolution where sources actually disagreed
func (j *claimJob) audit(ctx context.Context, resolutions []model.ConflictResolution) error {
	for i := range resolutions {
		r := &resolutions[i]
		if r.Outcome != model.OutcomeResolved && r.Outcome != model.OutcomeAmbiguous {
			continue
		}
		entry := store.AuditEntry{
			RunID:      j.runID,
			Kind:       store.AuditConflict,
			ClaimID:    j.claimID,
			Resolution: r,
			At:         j.p.opts.Now().UTC(),
		}
		if err := j.p.deps.Audit.Audit(ctx, entry); err != nil {
			return fmt.Errorf("audit %s: %w", r.Field, err)
		}
	}
	return nil
}
