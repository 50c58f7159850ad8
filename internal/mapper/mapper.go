package mapper

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/resubmit/internal/model"
)

// Mapper translates raw source records into CDM candidates
type Mapper struct {
	registry *Registry
}

// New creates a mapper over the given registry
func New(registry *Registry) *Mapper {
	return &Mapper{registry: registry}
}

// Registry returns the mapping sets the mapper uses
func (m *Mapper) Registry() *Registry {
	return m.registry
}

// Map produces a candidate from a raw record. Every problem is reported as a
// MappingError; when any of them is fatal the candidate is nil and the
// record belongs in quarantine. Fields that could not be mapped are
// explicitly unknown, never defaulted.
func (m *Mapper) Map(raw model.RawRecord) (*model.Candidate, []model.MappingError) {
	fatal := func(reason string) []model.MappingError {
		return []model.MappingError{{SourceID: raw.SourceID, Severity: model.SeverityFatal, Reason: reason}}
	}

	set, ok := m.registry.Lookup(raw.SourceID)
	if !ok {
		return nil, fatal("no mapping set for source")
	}
	if !set.AcceptsSchema(raw.SchemaVersion) {
		return nil, fatal(fmt.Sprintf("schema version %q not accepted (want one of %v)", raw.SchemaVersion, set.SchemaVersions))
	}
	if raw.Payload == nil {
		return nil, fatal("empty payload")
	}

	fingerprint := raw.Fingerprint()
	cand := &model.Candidate{
		SourceID:          raw.SourceID,
		SchemaVersion:     raw.SchemaVersion,
		IngestedAt:        raw.IngestedAt,
		RecordFingerprint: fingerprint,
		Fields:            make(map[model.Field]model.FieldValue, len(model.AllFields())),
	}
	for _, f := range model.AllFields() {
		cand.Fields[f] = model.Unknown()
	}

	var errs []model.MappingError
	consumed := make(map[string]bool)
	values := make(map[model.Field]any)

	for _, fm := range set.Mappings {
		fv, merr := m.mapField(raw, fm, fingerprint, consumed)
		if merr != nil {
			errs = append(errs, *merr)
		}
		cand.Fields[fm.Field] = fv
		if fv.State == model.StateKnown {
			values[fm.Field] = fv.Value
		}
	}

	identity := set.Identity
	if len(identity) == 0 {
		identity = DefaultIdentity
	}
	for _, f := range identity {
		if _, ok := values[f]; !ok {
			errs = append(errs, model.MappingError{
				SourceID: raw.SourceID,
				Field:    f,
				Severity: model.SeverityFatal,
				Reason:   "identity field unknown, claim id cannot be derived",
			})
		}
	}

	for _, e := range errs {
		if e.Fatal() {
			return nil, errs
		}
	}

	cand.ClaimID = ClaimID(identity, values)
	cand.Warnings = errs
	for key := range raw.Payload {
		if !consumed[key] {
			cand.Unmapped = append(cand.Unmapped, key)
		}
	}
	sort.Strings(cand.Unmapped)

	return cand, errs
}

// mapField resolves one mapping. The returned error is nil when the field
// mapped cleanly or was an expected null.
func (m *Mapper) mapField(raw model.RawRecord, fm model.FieldMapping, fingerprint string, consumed map[string]bool) (model.FieldValue, *model.MappingError) {
	merr := func(sev model.Severity, path, reason string) *model.MappingError {
		return &model.MappingError{SourceID: raw.SourceID, Field: fm.Field, Path: path, Severity: sev, Reason: reason}
	}

	// A path that is present but null or blank falls through to the next
	// one; the field is null only when every present path is.
	var (
		value    any
		path     string
		found    bool
		nullPath string
	)
	for _, p := range fm.Paths {
		consumed[rootKey(raw.Payload, p)] = true
		v, ok := lookup(raw.Payload, p)
		switch {
		case !ok || found:
		case isBlank(v):
			if nullPath == "" {
				nullPath = p
			}
		default:
			value, path, found = v, p, true
		}
	}
	if !found && nullPath != "" {
		value, path, found = nil, nullPath, true
	}

	if !found {
		if fm.Required {
			return model.Unknown(), merr(model.SeverityFatal, strings.Join(fm.Paths, "|"), "required field missing")
		}
		return model.Unknown(), merr(model.SeverityWarn, strings.Join(fm.Paths, "|"), "field missing")
	}

	coerced, err := coercers[coercionFor(fm)](value, fm)
	if errors.Is(err, errNull) {
		switch {
		case fm.Required:
			return model.Unknown(), merr(model.SeverityFatal, path, "required field is null")
		case fm.Nullable:
			return model.Unknown(), nil
		default:
			return model.Unknown(), merr(model.SeverityWarn, path, "field is null")
		}
	}
	if err != nil {
		sev := model.SeverityWarn
		if fm.CriticalForEligibility || fm.Required {
			sev = model.SeverityFatal
		}
		return model.Unknown(), merr(sev, path, err.Error())
	}

	return model.Known(coerced, model.Provenance{
		SourceID:          raw.SourceID,
		Path:              path,
		IngestedAt:        raw.IngestedAt,
		RecordFingerprint: fingerprint,
	}), nil
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
