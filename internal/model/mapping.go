package model

import "fmt"

// Severity of a mapping error
type Severity string

const (
	SeverityFatal Severity = "fatal" // Record is quarantined
	SeverityWarn  Severity = "warn"  // Field becomes unknown, record continues
)

// MappingError describes why a source field could not be mapped
type MappingError struct {
	SourceID string   `json:"source_id"`
	Field    Field    `json:"field,omitempty"`
	Path     string   `json:"path,omitempty"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

func (e MappingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", e.SourceID, e.Severity, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s (%s): %s", e.SourceID, e.Severity, e.Field, e.Path, e.Reason)
}

func (e MappingError) Unwrap() error { return ErrMapping }

// Fatal reports whether the error quarantines the record
func (e MappingError) Fatal() bool {
	return e.Severity == SeverityFatal
}

// FieldMapping maps one CDM field from a source payload
type FieldMapping struct {
	Field                  Field    `yaml:"field" json:"field"`
	Paths                  []string `yaml:"paths" json:"paths"`                                         // Alternatives, first present wins
	Coerce                 string   `yaml:"coerce,omitempty" json:"coerce,omitempty"`                   // Named coercion
	Required               bool     `yaml:"required,omitempty" json:"required,omitempty"`               // Missing is fatal
	Nullable               bool     `yaml:"nullable,omitempty" json:"nullable,omitempty"`               // Explicit null is expected
	CriticalForEligibility bool     `yaml:"critical_for_eligibility,omitempty" json:"critical,omitempty"` // Coercion failure is fatal
	Unit                   string   `yaml:"unit,omitempty" json:"unit,omitempty"`                       // money: dollars or cents
	Formats                []string `yaml:"formats,omitempty" json:"formats,omitempty"`                 // date layouts
	Separator              string   `yaml:"separator,omitempty" json:"separator,omitempty"`             // list delimiter
}

// MappingSet is the mapping configuration of one source system
type MappingSet struct {
	SourceID       string         `yaml:"source_id" json:"source_id"`
	SchemaVersions []string       `yaml:"schema_versions,omitempty" json:"schema_versions,omitempty"`
	Identity       []Field        `yaml:"identity,omitempty" json:"identity,omitempty"`
	Mappings       []FieldMapping `yaml:"mappings" json:"mappings"`
}

// AcceptsSchema reports whether the set maps records of the given version
func (s *MappingSet) AcceptsSchema(version string) bool {
	if len(s.SchemaVersions) == 0 {
		return true
	}
	for _, v := range s.SchemaVersions {
		if v == version {
			return true
		}
	}
	return false
}
