package score

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/resubmit/internal/llm"
	"github.com/ppiankov/resubmit/internal/model"
)

// LLMScorer asks a language model to classify the denial reason
type LLMScorer struct {
	provider llm.Provider
	model    string
}

// NewLLMScorer wraps a provider. modelName is recorded in the model version.
func NewLLMScorer(provider llm.Provider, modelName string) *LLMScorer {
	return &LLMScorer{provider: provider, model: modelName}
}

// Name returns the scorer kind
func (s *LLMScorer) Name() string { return "llm" }

// ModelVersion identifies provider and model
func (s *LLMScorer) ModelVersion() string {
	if s.model == "" {
		return "llm:" + s.provider.Name()
	}
	return "llm:" + s.provider.Name() + ":" + s.model
}

// Score classifies the denial. The prompt carries denial, payer and
// procedure context only.
func (s *LLMScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	code, hasCode := claim.DenialCode()
	text, hasText := claim.DenialReasonText()
	if !hasCode && !hasText {
		return model.InferenceResult{}, fmt.Errorf("%w: claim %s has neither denial code nor denial reason", ErrMissingFeature, claim.ClaimID)
	}

	payer, _ := claim.PayerID()
	var procs []string
	if pcs, ok := claim.ProcedureCodes(); ok {
		for _, p := range pcs {
			procs = append(procs, p.String())
		}
	}

	resp, err := s.provider.Classify(ctx, llm.ClassifyRequest{
		DenialCode:     code,
		DenialReason:   text,
		PayerID:        payer,
		ProcedureCodes: procs,
		Model:          s.model,
	})
	if err != nil {
		return model.InferenceResult{}, fmt.Errorf("classify denial: %w", err)
	}

	return model.InferenceResult{
		Score:           ptr(resp.RetryableProbability),
		FeatureSnapshot: map[string]float64{"llm_retryable_probability": resp.RetryableProbability},
		ModelVersion:    s.ModelVersion(),
		Signals: []model.Signal{{
			Type:        model.SignalClassifier,
			Severity:    model.SeverityInfo,
			Description: resp.Rationale,
			Data: map[string]interface{}{
				"provider":    s.provider.Name(),
				"model":       resp.Model,
				"probability": resp.RetryableProbability,
				"tokens":      resp.TokensUsed,
			},
		}},
	}, nil
}

// KeywordScorer classifies denial reasons from a fixed phrase table. It is
// the offline stand-in for the LLM classifier and fails on phrases it does
// not know.
type KeywordScorer struct {
	phrases []keywordPhrase
}

type keywordPhrase struct {
	phrase      string
	probability float64
}

// NewKeywordScorer creates the phrase table classifier
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{phrases: []keywordPhrase{
		{"form incomplete", 0.85},
		{"incorrect procedure", 0.15},
		{"not billable", 0.1},
	}}
}

// Name returns the scorer kind
func (s *KeywordScorer) Name() string { return "keyword" }

// ModelVersion returns the phrase table version
func (s *KeywordScorer) ModelVersion() string { return "keyword-v1" }

// Score returns the probability of the first phrase found in the denial reason
func (s *KeywordScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	text, ok := claim.DenialReasonText()
	if !ok {
		return model.InferenceResult{}, fmt.Errorf("%w: no denial reason text", ErrMissingFeature)
	}

	lower := strings.ToLower(text)
	for _, kp := range s.phrases {
		if !strings.Contains(lower, kp.phrase) {
			continue
		}
		return model.InferenceResult{
			Score:           ptr(kp.probability),
			FeatureSnapshot: map[string]float64{"keyword_probability": kp.probability},
			ModelVersion:    s.ModelVersion(),
			Signals: []model.Signal{{
				Type:        model.SignalClassifier,
				Severity:    model.SeverityInfo,
				Description: fmt.Sprintf("Denial reason matches %q", kp.phrase),
				Data:        map[string]interface{}{"phrase": kp.phrase, "probability": kp.probability},
			}},
		}, nil
	}
	return model.InferenceResult{}, fmt.Errorf("no classification for denial reason %q", text)
}
