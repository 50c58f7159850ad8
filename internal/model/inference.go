package model

import "fmt"

// InferenceResult is the probabilistic assessment of a claim.
// Score is nil when the scorer was unavailable; Reason says why.
type InferenceResult struct {
	Score           *float64           `json:"score"`                      // [0,1] or null
	FeatureSnapshot map[string]float64 `json:"feature_snapshot,omitempty"` // Inputs the score was computed from
	ModelVersion    string             `json:"model_version"`
	Reason          string             `json:"reason,omitempty"`
	Signals         []Signal           `json:"signals,omitempty"` // Per-feature contributions
}

// Available reports whether a score was produced
func (r InferenceResult) Available() bool {
	return r.Score != nil
}

// Err wraps ErrScorerUnavailable with the reason when no score was
// produced, nil otherwise
func (r InferenceResult) Err() error {
	if r.Available() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrScorerUnavailable, r.Reason)
}

// Signal is a transparent scoring contribution
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"` // Formula and inputs
}

// SignalType classifies a scoring contribution
type SignalType string

const (
	SignalDenialGroup  SignalType = "denial_group"  // Group code of the CARC (CO, PR, OA, PI)
	SignalDenialReason SignalType = "denial_reason" // Retryable vs non-retryable reason text
	SignalCoding       SignalType = "coding"        // Procedure/modifier/diagnosis shape
	SignalFinancial    SignalType = "financial"     // Billed and allowed amounts
	SignalTimeliness   SignalType = "timeliness"    // Submission lag
	SignalDataQuality  SignalType = "data_quality"  // Unknown and ambiguous fields
	SignalClassifier   SignalType = "classifier"    // LLM denial classification
	SignalCalibration  SignalType = "calibration"   // Platt calibration step
)

// SignalSeverity indicates how strongly a signal moved the score
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
