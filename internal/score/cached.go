package score

import (
	"context"
	"strings"

	"github.com/ppiankov/resubmit/internal/cache"
	"github.com/ppiankov/resubmit/internal/model"
)

// CachedScorer memoises successful results by model version and scorer
// inputs. Failures are never cached.
type CachedScorer struct {
	inner Scorer
	cache cache.Cache
}

// NewCachedScorer wraps inner with c
func NewCachedScorer(inner Scorer, c cache.Cache) *CachedScorer {
	return &CachedScorer{inner: inner, cache: c}
}

// Name returns the wrapped scorer kind
func (s *CachedScorer) Name() string { return s.inner.Name() }

// ModelVersion returns the wrapped model version
func (s *CachedScorer) ModelVersion() string { return s.inner.ModelVersion() }

// Score returns a cached result when present
func (s *CachedScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	key, ok := s.key(claim)
	if ok {
		if res, found := s.cache.Get(key); found {
			return res, nil
		}
	}

	res, err := s.inner.Score(ctx, claim)
	if err != nil || res.Score == nil || !ok {
		return res, err
	}

	_ = s.cache.Put(key, res)
	return res, nil
}

// key covers the features plus the denial context a classifier reads
func (s *CachedScorer) key(claim *model.CanonicalClaim) (string, bool) {
	features, err := ExtractFeatures(claim)
	if err != nil {
		return "", false
	}

	code, _ := claim.DenialCode()
	text, _ := claim.DenialReasonText()
	payer, _ := claim.PayerID()
	var procs []string
	if pcs, ok := claim.ProcedureCodes(); ok {
		for _, p := range pcs {
			procs = append(procs, p.String())
		}
	}

	return cache.Key(
		s.inner.ModelVersion(),
		features.Fingerprint(),
		code,
		strings.ToLower(text),
		payer,
		strings.Join(procs, ","),
	), true
}
