package score

import (
	"context"
	"fmt"

	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/worker"
)

// RateLimitedScorer bounds how fast the wrapped scorer is called. Waiting
// for a token counts against the caller's timeout.
type RateLimitedScorer struct {
	inner   Scorer
	limiter *worker.Limiter
}

// NewRateLimitedScorer wraps inner with limiter
func NewRateLimitedScorer(inner Scorer, limiter *worker.Limiter) *RateLimitedScorer {
	return &RateLimitedScorer{inner: inner, limiter: limiter}
}

// Name returns the wrapped scorer kind
func (s *RateLimitedScorer) Name() string { return s.inner.Name() }

// ModelVersion returns the wrapped model version
func (s *RateLimitedScorer) ModelVersion() string { return s.inner.ModelVersion() }

// Score waits for a token, then scores
func (s *RateLimitedScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	if err := s.limiter.Wait(ctx, s.inner.Name()); err != nil {
		return model.InferenceResult{}, fmt.Errorf("rate limit: %w", err)
	}
	return s.inner.Score(ctx, claim)
}
