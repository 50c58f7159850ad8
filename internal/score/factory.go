package score

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/resubmit/internal/cache"
	"github.com/ppiankov/resubmit/internal/llm"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/worker"
)

// New builds the scorer stack described by cfg. The cache wraps the rate
// limiter so cache hits are never throttled.
func New(cfg model.Config) (Scorer, error) {
	base, err := newBase(cfg)
	if err != nil {
		return nil, err
	}

	var s Scorer = base
	if cfg.RateLimiting.RequestsPerSecond > 0 {
		s = NewRateLimitedScorer(s, worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize))
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir != "" {
		s = NewCachedScorer(s, cache.NewTiered(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL))
	}
	return s, nil
}

func newBase(cfg model.Config) (Scorer, error) {
	kind := strings.ToLower(cfg.Scorer.Kind)

	if kind == "none" {
		return disabledScorer{}, nil
	}

	var classifier Scorer
	if kind == "llm" || kind == "hybrid" {
		provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrConfig, err)
		}
		switch {
		case provider != nil:
			classifier = NewLLMScorer(provider, cfg.LLM.Model)
		case kind == "llm":
			return nil, fmt.Errorf("%w: scorer kind llm needs llm.provider", model.ErrConfig)
		default:
			classifier = NewKeywordScorer()
		}
	}
	if kind == "llm" {
		return classifier, nil
	}

	weights := DefaultWeights()
	if cfg.Scorer.WeightsFile != "" {
		w, err := LoadWeights(cfg.Scorer.WeightsFile)
		if err != nil {
			return nil, err
		}
		weights = w
	}
	h, err := NewHeuristicScorer(weights)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "heuristic", "":
		return h, nil
	case "hybrid":
		return NewHybridScorer(h, classifier, cfg.Scorer.LLMWeight)
	default:
		return nil, fmt.Errorf("%w: unknown scorer kind %q (supported: heuristic, llm, hybrid, none)", model.ErrConfig, cfg.Scorer.Kind)
	}
}

// disabledScorer never scores; every claim falls back to review thresholds
type disabledScorer struct{}

func (disabledScorer) Name() string         { return "none" }
func (disabledScorer) ModelVersion() string { return "none" }

func (disabledScorer) Score(context.Context, *model.CanonicalClaim) (model.InferenceResult, error) {
	return model.InferenceResult{}, errors.New("scoring disabled")
}
