package score

import (
	"context"
	"fmt"

	"github.com/ppiankov/resubmit/internal/model"
)

// HybridScorer scores with the heuristic model and consults a classifier
// only for denial reasons the heuristic cannot categorise. The two
// probabilities are blended linearly.
type HybridScorer struct {
	heuristic  *HeuristicScorer
	classifier Scorer
	weight     float64
}

// NewHybridScorer creates a hybrid scorer. weight is the classifier's share
// of the blended score and must be in [0,1].
func NewHybridScorer(h *HeuristicScorer, classifier Scorer, weight float64) (*HybridScorer, error) {
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: classifier weight %v outside [0,1]", model.ErrConfig, weight)
	}
	return &HybridScorer{heuristic: h, classifier: classifier, weight: weight}, nil
}

// Name returns the scorer kind
func (s *HybridScorer) Name() string { return "hybrid" }

// ModelVersion combines both model versions
func (s *HybridScorer) ModelVersion() string {
	if s.classifier == nil {
		return s.heuristic.ModelVersion()
	}
	return s.heuristic.ModelVersion() + "+" + s.classifier.ModelVersion()
}

// Score returns the heuristic result, blended with the classifier when the
// denial reason is unclassified. A classifier failure leaves the heuristic
// score in place and is reported as a signal.
func (s *HybridScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	res, err := s.heuristic.Score(ctx, claim)
	if err != nil {
		return res, err
	}
	res.ModelVersion = s.ModelVersion()

	if s.classifier == nil || res.FeatureSnapshot[FeatReasonUnclassified] != 1 {
		return res, nil
	}

	cls, err := s.classifier.Score(ctx, claim)
	if err == nil && cls.Score == nil {
		err = fmt.Errorf("classifier returned no score")
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.InferenceResult{}, ctx.Err()
		}
		res.Signals = append(res.Signals, model.Signal{
			Type:        model.SignalClassifier,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("Classifier unavailable, heuristic score kept: %v", err),
			Data:        map[string]interface{}{"classifier": s.classifier.Name()},
		})
		return res, nil
	}

	h := *res.Score
	c := *cls.Score
	blended := (1-s.weight)*h + s.weight*c

	for k, v := range cls.FeatureSnapshot {
		res.FeatureSnapshot[k] = v
	}
	res.Signals = append(res.Signals, cls.Signals...)
	res.Signals = append(res.Signals, model.Signal{
		Type:        model.SignalCalibration,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Blended heuristic %.3f with classifier %.3f", h, c),
		Data: map[string]interface{}{
			"heuristic":  h,
			"classifier": c,
			"weight":     s.weight,
			"score":      blended,
			"formula":    "(1 - weight) * heuristic + weight * classifier",
		},
	})
	res.Score = ptr(blended)
	return res, nil
}
