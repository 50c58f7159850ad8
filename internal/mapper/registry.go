package mapper

import (
	"fmt"
	"sort"

	"github.com/ppiankov/resubmit/internal/model"
)

// Registry holds the mapping set of every known source system
type Registry struct {
	sets map[string]*model.MappingSet
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*model.MappingSet)}
}

// Register validates and adds a mapping set
func (r *Registry) Register(set *model.MappingSet) error {
	if err := Validate(set); err != nil {
		return err
	}
	if _, exists := r.sets[set.SourceID]; exists {
		return fmt.Errorf("%w: duplicate mapping set for source %q", model.ErrConfig, set.SourceID)
	}
	r.sets[set.SourceID] = set
	return nil
}

// Lookup returns the mapping set for a source
func (r *Registry) Lookup(sourceID string) (*model.MappingSet, bool) {
	set, ok := r.sets[sourceID]
	return set, ok
}

// Sources returns the registered source ids, sorted
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.sets))
	for id := range r.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Require fails with ErrConfig when any source has no mapping set
func (r *Registry) Require(sourceIDs ...string) error {
	var missing []string
	for _, id := range sourceIDs {
		if _, ok := r.sets[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: no mapping set for sources %v", model.ErrConfig, missing)
	}
	return nil
}

// Validate checks a mapping set before any record is processed
func Validate(set *model.MappingSet) error {
	if set.SourceID == "" {
		return fmt.Errorf("%w: mapping set without source_id", model.ErrConfig)
	}
	if len(set.Mappings) == 0 {
		return fmt.Errorf("%w: mapping set %s has no mappings", model.ErrConfig, set.SourceID)
	}

	mapped := make(map[model.Field]bool)
	for i, m := range set.Mappings {
		if !m.Field.Valid() {
			return fmt.Errorf("%w: %s mapping %d: unknown field %q", model.ErrConfig, set.SourceID, i, m.Field)
		}
		if mapped[m.Field] {
			return fmt.Errorf("%w: %s: field %s mapped twice", model.ErrConfig, set.SourceID, m.Field)
		}
		mapped[m.Field] = true

		if len(m.Paths) == 0 {
			return fmt.Errorf("%w: %s: field %s has no paths", model.ErrConfig, set.SourceID, m.Field)
		}
		name := coercionFor(m)
		kind, ok := coercerKinds[name]
		if !ok {
			return fmt.Errorf("%w: %s: field %s: unknown coercion %q", model.ErrConfig, set.SourceID, m.Field, name)
		}
		if kind != fieldKinds[m.Field] {
			return fmt.Errorf("%w: %s: coercion %q cannot produce field %s", model.ErrConfig, set.SourceID, name, m.Field)
		}
		if m.Unit != "" && m.Unit != "dollars" && m.Unit != "cents" {
			return fmt.Errorf("%w: %s: field %s: unknown unit %q", model.ErrConfig, set.SourceID, m.Field, m.Unit)
		}
	}

	identity := set.Identity
	if len(identity) == 0 {
		identity = DefaultIdentity
	}
	for _, f := range identity {
		if !mapped[f] {
			return fmt.Errorf("%w: %s: identity field %s is not mapped", model.ErrConfig, set.SourceID, f)
		}
	}
	return nil
}
