package model

import (
	"fmt"
	"time"
)

// Candidate is the CDM projection of a single raw record
type Candidate struct {
	ClaimID           string               `json:"claim_id"`
	SourceID          string               `json:"source_id"`
	SchemaVersion     string               `json:"schema_version,omitempty"`
	IngestedAt        time.Time            `json:"ingested_at"`
	RecordFingerprint string               `json:"record_fingerprint"`
	Fields            map[Field]FieldValue `json:"fields"`
	Unmapped          []string             `json:"unmapped,omitempty"` // Payload keys no mapping consumed
	Warnings          []MappingError       `json:"warnings,omitempty"`
}

// Field returns the candidate's value for f, unknown when absent
func (c *Candidate) Field(f Field) FieldValue {
	if v, ok := c.Fields[f]; ok {
		return v
	}
	return Unknown()
}

// CanonicalClaim is the unified, conflict-resolved view of a claim
type CanonicalClaim struct {
	ClaimID string               `json:"claim_id"`
	Fields  map[Field]FieldValue `json:"fields"`
	Sources []string             `json:"sources"` // Contributing source ids, sorted
}

// Field returns the resolved value for f, unknown when absent
func (c *CanonicalClaim) Field(f Field) FieldValue {
	if v, ok := c.Fields[f]; ok {
		return v
	}
	return Unknown()
}

// State returns the resolution state of f
func (c *CanonicalClaim) State(f Field) FieldState {
	return c.Field(f).State
}

// Known reports whether f carries a value
func (c *CanonicalClaim) Known(f Field) bool {
	return c.State(f) == StateKnown
}

// Ambiguous lists the fields left unresolved by conflict resolution
func (c *CanonicalClaim) Ambiguous() []Field {
	return c.fieldsIn(StateAmbiguous)
}

// UnknownFields lists fields with no value
func (c *CanonicalClaim) UnknownFields() []Field {
	return c.fieldsIn(StateUnknown)
}

func (c *CanonicalClaim) fieldsIn(state FieldState) []Field {
	var out []Field
	for _, f := range allFields {
		if c.State(f) == state {
			out = append(out, f)
		}
	}
	return out
}

func (c *CanonicalClaim) stringField(f Field) (string, bool) {
	fv := c.Field(f)
	if fv.State != StateKnown {
		return "", false
	}
	s, ok := fv.Value.(string)
	return s, ok
}

func (c *CanonicalClaim) ClaimNumber() (string, bool)      { return c.stringField(FieldClaimNumber) }
func (c *CanonicalClaim) PatientRef() (string, bool)       { return c.stringField(FieldPatientRef) }
func (c *CanonicalClaim) EncounterRef() (string, bool)     { return c.stringField(FieldEncounterRef) }
func (c *CanonicalClaim) PayerID() (string, bool)          { return c.stringField(FieldPayerID) }
func (c *CanonicalClaim) ClaimStatus() (string, bool)      { return c.stringField(FieldClaimStatus) }
func (c *CanonicalClaim) DenialCode() (string, bool)       { return c.stringField(FieldDenialCode) }
func (c *CanonicalClaim) DenialReasonText() (string, bool) { return c.stringField(FieldDenialReasonText) }

// BilledAmount returns the billed amount in cents
func (c *CanonicalClaim) BilledAmount() (Money, bool) {
	return c.moneyField(FieldBilledAmount)
}

// AllowedAmount returns the allowed amount in cents
func (c *CanonicalClaim) AllowedAmount() (Money, bool) {
	return c.moneyField(FieldAllowedAmount)
}

func (c *CanonicalClaim) moneyField(f Field) (Money, bool) {
	fv := c.Field(f)
	if fv.State != StateKnown {
		return 0, false
	}
	m, ok := fv.Value.(Money)
	return m, ok
}

// ServiceDates returns the dates of service
func (c *CanonicalClaim) ServiceDates() (DateRange, bool) {
	fv := c.Field(FieldServiceDateRange)
	if fv.State != StateKnown {
		return DateRange{}, false
	}
	r, ok := fv.Value.(DateRange)
	return r, ok
}

// SubmittedAt returns the original submission date
func (c *CanonicalClaim) SubmittedAt() (time.Time, bool) {
	fv := c.Field(FieldSubmittedAt)
	if fv.State != StateKnown {
		return time.Time{}, false
	}
	t, ok := fv.Value.(time.Time)
	return t, ok
}

// ProcedureCodes returns the ordered procedure codes
func (c *CanonicalClaim) ProcedureCodes() ([]ProcedureCode, bool) {
	fv := c.Field(FieldProcedureCodes)
	if fv.State != StateKnown {
		return nil, false
	}
	p, ok := fv.Value.([]ProcedureCode)
	return p, ok
}

// DiagnosisCodes returns the diagnosis code set
func (c *CanonicalClaim) DiagnosisCodes() ([]string, bool) {
	fv := c.Field(FieldDiagnosisCodes)
	if fv.State != StateKnown {
		return nil, false
	}
	d, ok := fv.Value.([]string)
	return d, ok
}

// Validate checks the structural invariants of a canonical claim: every
// known field names a contributing source, unknown and ambiguous fields
// carry neither value nor provenance.
func (c *CanonicalClaim) Validate() error {
	if c.ClaimID == "" {
		return fmt.Errorf("canonical claim: missing claim_id")
	}

	sources := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		sources[s] = true
	}

	for f, fv := range c.Fields {
		if !f.Valid() {
			return fmt.Errorf("canonical claim %s: unknown field %q", c.ClaimID, f)
		}
		switch fv.State {
		case StateKnown:
			if fv.Value == nil {
				return fmt.Errorf("canonical claim %s: field %s known without value", c.ClaimID, f)
			}
			if fv.Provenance == nil || !sources[fv.Provenance.SourceID] {
				return fmt.Errorf("canonical claim %s: field %s has no contributing provenance", c.ClaimID, f)
			}
		case StateUnknown, StateAmbiguous:
			if fv.Value != nil || fv.Provenance != nil {
				return fmt.Errorf("canonical claim %s: %s field %s carries a value", c.ClaimID, fv.State, f)
			}
		default:
			return fmt.Errorf("canonical claim %s: field %s has invalid state %q", c.ClaimID, f, fv.State)
		}
	}
	return nil
}
