package score

import (
	"context"
	"fmt"
	"math"

	"github.com/ppiankov/resubmit/internal/model"
)

// HeuristicScorer is a calibrated logistic model over claim features.
// Every feature's contribution is reported as a signal.
type HeuristicScorer struct {
	weights Weights
}

// NewHeuristicScorer creates a heuristic scorer
func NewHeuristicScorer(w Weights) (*HeuristicScorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &HeuristicScorer{weights: w}, nil
}

// Name returns the scorer kind
func (s *HeuristicScorer) Name() string { return "heuristic" }

// ModelVersion returns the weights version
func (s *HeuristicScorer) ModelVersion() string { return s.weights.Version }

// Score computes the calibrated probability
func (s *HeuristicScorer) Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error) {
	if err := ctx.Err(); err != nil {
		return model.InferenceResult{}, err
	}

	features, err := ExtractFeatures(claim)
	if err != nil {
		return model.InferenceResult{}, err
	}

	z := s.weights.Bias
	var signals []model.Signal
	for _, name := range FeatureNames() {
		value := features.Values[name]
		weight := s.weights.Coefficients[name]
		contribution := value * weight
		z += contribution
		if contribution == 0 {
			continue
		}
		signals = append(signals, model.Signal{
			Type:        signalType(name),
			Severity:    severityOf(contribution),
			Description: describe(name, features, value),
			Data: map[string]interface{}{
				"feature":      name,
				"value":        value,
				"weight":       weight,
				"contribution": contribution,
				"formula":      "weight * value",
			},
		})
	}

	cal := s.weights.Calibration
	p := sigmoid(cal.A*z + cal.B)
	signals = append(signals, model.Signal{
		Type:        model.SignalCalibration,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Calibrated probability %.3f from logit %.3f", p, z),
		Data: map[string]interface{}{
			"logit":   z,
			"a":       cal.A,
			"b":       cal.B,
			"score":   p,
			"formula": "sigmoid(a * (bias + sum(contributions)) + b)",
		},
	})

	return model.InferenceResult{
		Score:           ptr(p),
		FeatureSnapshot: features.Snapshot(),
		ModelVersion:    s.weights.Version,
		Signals:         signals,
	}, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func severityOf(contribution float64) model.SignalSeverity {
	switch {
	case contribution <= -1:
		return model.SeverityCritical
	case contribution < 0:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}

func signalType(feature string) model.SignalType {
	switch feature {
	case FeatGroupCO, FeatGroupPR, FeatGroupOA, FeatGroupPI, FeatGroupCR:
		return model.SignalDenialGroup
	case FeatReasonRetryable, FeatReasonNonRetryable, FeatReasonUnclassified:
		return model.SignalDenialReason
	case FeatHasModifier, FeatProcedureCount, FeatDiagnosisCount:
		return model.SignalCoding
	case FeatBilledLog, FeatAllowedRatio:
		return model.SignalFinancial
	case FeatSubmissionLagDays:
		return model.SignalTimeliness
	default:
		return model.SignalDataQuality
	}
}

func describe(feature string, f Features, value float64) string {
	switch signalType(feature) {
	case model.SignalDenialGroup:
		return fmt.Sprintf("Denial group %s", f.Group)
	case model.SignalDenialReason:
		return fmt.Sprintf("Denial reason is %s", f.Reason)
	case model.SignalFinancial:
		if feature == FeatBilledLog {
			return fmt.Sprintf("Billed amount $%.2f", math.Expm1(value))
		}
		return fmt.Sprintf("Allowed/billed ratio %.2f", value)
	case model.SignalTimeliness:
		return fmt.Sprintf("Submitted %.0f days after service", value)
	default:
		return fmt.Sprintf("%s = %g", feature, value)
	}
}
