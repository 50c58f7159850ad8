package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Field names an attribute of the canonical claim
type Field string

const (
	FieldClaimNumber      Field = "claim_number"       // Cross-system claim identifier
	FieldPatientRef       Field = "patient_ref"        // Patient/member reference
	FieldEncounterRef     Field = "encounter_ref"      // Encounter/visit reference
	FieldPayerID          Field = "payer_id"           // Payer identifier
	FieldClaimStatus      Field = "claim_status"       // denied, approved, pending
	FieldProcedureCodes   Field = "procedure_codes"    // Ordered procedure codes with modifiers
	FieldDiagnosisCodes   Field = "diagnosis_codes"    // Diagnosis code set
	FieldDenialCode       Field = "denial_code"        // e.g. CO-50
	FieldDenialReasonText Field = "denial_reason_text" // Free-text denial reason
	FieldBilledAmount     Field = "billed_amount"      // Money, cents
	FieldAllowedAmount    Field = "allowed_amount"     // Money, cents
	FieldServiceDateRange Field = "service_date_range" // Dates of service
	FieldSubmittedAt      Field = "submitted_at"       // Original submission date
)

// allFields is the canonical field order used for output and fingerprints
var allFields = []Field{
	FieldClaimNumber,
	FieldPatientRef,
	FieldEncounterRef,
	FieldPayerID,
	FieldClaimStatus,
	FieldProcedureCodes,
	FieldDiagnosisCodes,
	FieldDenialCode,
	FieldDenialReasonText,
	FieldBilledAmount,
	FieldAllowedAmount,
	FieldServiceDateRange,
	FieldSubmittedAt,
}

// AllFields returns every canonical field in canonical order
func AllFields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// Category groups fields for authoritative-source precedence
type Category string

const (
	CategoryIdentity  Category = "identity"
	CategoryPatient   Category = "patient"
	CategoryPayer     Category = "payer"
	CategoryStatus    Category = "status"
	CategoryClinical  Category = "clinical"
	CategoryDenial    Category = "denial"
	CategoryFinancial Category = "financial"
	CategoryDates     Category = "dates"
)

var fieldCategories = map[Field]Category{
	FieldClaimNumber:      CategoryIdentity,
	FieldPatientRef:       CategoryPatient,
	FieldEncounterRef:     CategoryPatient,
	FieldPayerID:          CategoryPayer,
	FieldClaimStatus:      CategoryStatus,
	FieldProcedureCodes:   CategoryClinical,
	FieldDiagnosisCodes:   CategoryClinical,
	FieldDenialCode:       CategoryDenial,
	FieldDenialReasonText: CategoryDenial,
	FieldBilledAmount:     CategoryFinancial,
	FieldAllowedAmount:    CategoryFinancial,
	FieldServiceDateRange: CategoryDates,
	FieldSubmittedAt:      CategoryDates,
}

// Category returns the precedence category of the field
func (f Field) Category() Category {
	return fieldCategories[f]
}

// Valid reports whether f is a canonical field
func (f Field) Valid() bool {
	_, ok := fieldCategories[f]
	return ok
}

// ParseField converts a configured name into a Field
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(strings.ToLower(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown field %q", ErrConfig, s)
	}
	return f, nil
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range fieldCategories {
		if known == c {
			return true
		}
	}
	return false
}

// FieldState describes whether a canonical field carries a value
type FieldState string

const (
	StateKnown     FieldState = "known"
	StateUnknown   FieldState = "unknown"
	StateAmbiguous FieldState = "ambiguous"
)

// Provenance records where a field value came from
type Provenance struct {
	SourceID          string    `json:"source_id"`
	Path              string    `json:"path"`
	IngestedAt        time.Time `json:"ingested_at"`
	RecordFingerprint string    `json:"record_fingerprint,omitempty"`
}

// FieldValue is a value with its state and provenance
type FieldValue struct {
	State      FieldState  `json:"state"`
	Value      any         `json:"value,omitempty"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// Unknown returns an explicitly unknown field value
func Unknown() FieldValue {
	return FieldValue{State: StateUnknown}
}

// Known wraps a value with its provenance
func Known(v any, p Provenance) FieldValue {
	return FieldValue{State: StateKnown, Value: v, Provenance: &p}
}

// Money is an amount in integer cents
type Money int64

// Dollars returns the amount as a float in dollars
func (m Money) Dollars() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := uint64(m)
	if m < 0 {
		sign = "-"
		v = -v // two's complement magnitude, exact for MinInt64
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// DateRange is an inclusive range of service dates
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ProcedureCode is a CPT/HCPCS code with its modifiers
type ProcedureCode struct {
	Code      string   `json:"code"`
	Modifiers []string `json:"modifiers,omitempty"`
}

func (p ProcedureCode) String() string {
	if len(p.Modifiers) == 0 {
		return p.Code
	}
	return p.Code + "-" + strings.Join(p.Modifiers, "-")
}

// DateOf truncates t to a UTC calendar date
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValueKey renders a field value in a canonical comparable form.
// Two values are equal for conflict purposes iff their keys are equal.
func ValueKey(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return "s:" + val
	case Money:
		return fmt.Sprintf("m:%d", int64(val))
	case time.Time:
		return "d:" + val.Format("2006-01-02")
	case DateRange:
		return "r:" + val.From.Format("2006-01-02") + "/" + val.To.Format("2006-01-02")
	case []ProcedureCode:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = p.String()
		}
		return "p:" + strings.Join(parts, ",")
	case []string:
		sorted := append([]string(nil), val...)
		sort.Strings(sorted)
		return "l:" + strings.Join(sorted, ",")
	default:
		return fmt.Sprintf("x:%v", val)
	}
}
