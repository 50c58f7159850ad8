package score

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/resubmit/internal/model"
)

// Weights parameterise the heuristic scorer
type Weights struct {
	Version      string             `yaml:"version"`
	Bias         float64            `yaml:"bias"`
	Coefficients map[string]float64 `yaml:"coefficients"`
	Calibration  Calibration        `yaml:"calibration"`
}

// Calibration is a Platt scaling step applied to the raw logit:
// p = sigmoid(A*z + B)
type Calibration struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// DefaultWeights returns the built-in weights
func DefaultWeights() Weights {
	return Weights{
		Version: "heuristic-v1",
		Bias:    0.2,
		Coefficients: map[string]float64{
			FeatGroupCO:            0.3,
			FeatGroupPR:            -1.2,
			FeatGroupOA:            -0.3,
			FeatGroupPI:            -0.4,
			FeatGroupCR:            0.1,
			FeatReasonRetryable:    1.8,
			FeatReasonNonRetryable: -2.5,
			FeatReasonUnclassified: 0,
			FeatHasModifier:        0.2,
			FeatProcedureCount:     -0.05,
			FeatDiagnosisCount:     0.05,
			FeatBilledLog:          -0.08,
			FeatAllowedRatio:       0.4,
			FeatSubmissionLagDays:  -0.004,
			FeatUnknownFields:      -0.15,
			FeatAmbiguousFields:    -0.5,
		},
		Calibration: Calibration{A: 1, B: 0},
	}
}

// Validate checks coefficient names and the calibration slope
func (w Weights) Validate() error {
	if w.Version == "" {
		return fmt.Errorf("%w: scorer weights need a version", model.ErrConfig)
	}
	known := make(map[string]bool)
	for _, name := range FeatureNames() {
		known[name] = true
	}
	for name, v := range w.Coefficients {
		if !known[name] {
			return fmt.Errorf("%w: unknown feature %q in scorer weights", model.ErrConfig, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coefficient %q is not finite", model.ErrConfig, name)
		}
	}
	// A non-positive slope would invert or flatten the ranking
	if w.Calibration.A <= 0 {
		return fmt.Errorf("%w: calibration slope must be positive, got %v", model.ErrConfig, w.Calibration.A)
	}
	return nil
}

// LoadWeights reads scorer weights from a YAML file
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("%w: read scorer weights: %v", model.ErrConfig, err)
	}

	var w Weights
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return Weights{}, fmt.Errorf("%w: parse scorer weights %s: %v", model.ErrConfig, path, err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
