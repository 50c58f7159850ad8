package score

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/resubmit/internal/model"
)

// ErrMissingFeature means the claim lacks the inputs every scorer needs
var ErrMissingFeature = errors.New("missing feature")

// Feature names. The set is fixed so snapshots of different claims line up.
const (
	FeatGroupCO            = "group_co"
	FeatGroupPR            = "group_pr"
	FeatGroupOA            = "group_oa"
	FeatGroupPI            = "group_pi"
	FeatGroupCR            = "group_cr"
	FeatReasonRetryable    = "reason_retryable"
	FeatReasonNonRetryable = "reason_non_retryable"
	FeatReasonUnclassified = "reason_unclassified"
	FeatHasModifier        = "has_modifier"
	FeatProcedureCount     = "procedure_count"
	FeatDiagnosisCount     = "diagnosis_count"
	FeatBilledLog          = "billed_log"
	FeatAllowedRatio       = "allowed_ratio"
	FeatSubmissionLagDays  = "submission_lag_days"
	FeatUnknownFields      = "unknown_fields"
	FeatAmbiguousFields    = "ambiguous_fields"
)

// FeatureNames lists every feature in snapshot order
func FeatureNames() []string {
	return []string{
		FeatGroupCO, FeatGroupPR, FeatGroupOA, FeatGroupPI, FeatGroupCR,
		FeatReasonRetryable, FeatReasonNonRetryable, FeatReasonUnclassified,
		FeatHasModifier, FeatProcedureCount, FeatDiagnosisCount,
		FeatBilledLog, FeatAllowedRatio, FeatSubmissionLagDays,
		FeatUnknownFields, FeatAmbiguousFields,
	}
}

// ReasonCategory buckets a denial by how correctable it is
type ReasonCategory string

const (
	ReasonRetryable    ReasonCategory = "retryable"
	ReasonNonRetryable ReasonCategory = "non_retryable"
	ReasonUnclassified ReasonCategory = "unclassified"
)

// Reason text fragments, matched case-insensitively
var (
	retryableReasons = []string{
		"missing modifier",
		"incorrect npi",
		"prior auth required",
	}
	nonRetryableReasons = []string{
		"authorization expired",
		"incorrect provider type",
	}
)

// CARC codes by category when the reason text does not decide it
var (
	retryableCodes = map[string]bool{
		"4":   true, // Modifier inconsistent or missing
		"16":  true, // Claim lacks information
		"197": true, // Precertification absent
		"206": true, // NPI denial
		"252": true, // Attachment required
	}
	nonRetryableCodes = map[string]bool{
		"18":  true, // Duplicate
		"27":  true, // Coverage terminated
		"29":  true, // Timely filing
		"50":  true, // Not medically necessary
		"96":  true, // Non-covered charge
		"109": true, // Not covered by this payer
	}
)

// Features are the numeric inputs a scorer sees, derived from the claim only
type Features struct {
	Values map[string]float64
	Reason ReasonCategory
	Group  string
}

// Snapshot returns a copy of the feature values
func (f Features) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(f.Values))
	for k, v := range f.Values {
		out[k] = v
	}
	return out
}

// Fingerprint renders the values in a stable order
func (f Features) Fingerprint() string {
	names := make([]string, 0, len(f.Values))
	for k := range f.Values {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		fmt.Fprintf(&b, "%s=%.6f;", k, f.Values[k])
	}
	return b.String()
}

// ClassifyReason assigns a reason category from the denial text, falling
// back to the CARC code.
func ClassifyReason(code, text string) ReasonCategory {
	lower := strings.ToLower(text)
	for _, r := range retryableReasons {
		if strings.Contains(lower, r) {
			return ReasonRetryable
		}
	}
	for _, r := range nonRetryableReasons {
		if strings.Contains(lower, r) {
			return ReasonNonRetryable
		}
	}

	_, number := splitCARC(code)
	switch {
	case retryableCodes[number]:
		return ReasonRetryable
	case nonRetryableCodes[number]:
		return ReasonNonRetryable
	}
	return ReasonUnclassified
}

// splitCARC splits "CO-50" into its group and reason number
func splitCARC(code string) (string, string) {
	group, number, ok := strings.Cut(code, "-")
	if !ok {
		return "", ""
	}
	return group, number
}

// ExtractFeatures derives features from a canonical claim. It is
// deterministic: the same claim always yields the same features.
func ExtractFeatures(claim *model.CanonicalClaim) (Features, error) {
	code, hasCode := claim.DenialCode()
	text, hasText := claim.DenialReasonText()
	if !hasCode && !hasText {
		return Features{}, fmt.Errorf("%w: claim %s has neither denial code nor denial reason", ErrMissingFeature, claim.ClaimID)
	}

	values := make(map[string]float64, len(FeatureNames()))
	for _, name := range FeatureNames() {
		values[name] = 0
	}

	group, _ := splitCARC(code)
	switch group {
	case "CO":
		values[FeatGroupCO] = 1
	case "PR":
		values[FeatGroupPR] = 1
	case "OA":
		values[FeatGroupOA] = 1
	case "PI":
		values[FeatGroupPI] = 1
	case "CR":
		values[FeatGroupCR] = 1
	}

	reason := ClassifyReason(code, text)
	switch reason {
	case ReasonRetryable:
		values[FeatReasonRetryable] = 1
	case ReasonNonRetryable:
		values[FeatReasonNonRetryable] = 1
	default:
		values[FeatReasonUnclassified] = 1
	}

	if procs, ok := claim.ProcedureCodes(); ok {
		values[FeatProcedureCount] = float64(len(procs))
		for _, p := range procs {
			if len(p.Modifiers) > 0 {
				values[FeatHasModifier] = 1
				break
			}
		}
	}
	if dx, ok := claim.DiagnosisCodes(); ok {
		values[FeatDiagnosisCount] = float64(len(dx))
	}

	billed, hasBilled := claim.BilledAmount()
	if hasBilled {
		values[FeatBilledLog] = math.Log1p(billed.Dollars())
	}
	if allowed, ok := claim.AllowedAmount(); ok && hasBilled && billed > 0 {
		values[FeatAllowedRatio] = math.Min(float64(allowed)/float64(billed), 1)
	}

	if submitted, ok := claim.SubmittedAt(); ok {
		if dates, ok := claim.ServiceDates(); ok {
			lag := model.DateOf(submitted).Sub(model.DateOf(dates.To)).Hours() / 24
			values[FeatSubmissionLagDays] = math.Max(lag, 0)
		}
	}

	values[FeatUnknownFields] = float64(len(claim.UnknownFields()))
	values[FeatAmbiguousFields] = float64(len(claim.Ambiguous()))

	return Features{Values: values, Reason: reason, Group: group}, nil
}
