package resolve

import "github.com/ppiankov/resubmit/internal/model"

// AuthorityIndex answers which sources are authoritative for a field
type AuthorityIndex struct {
	byField map[model.Field]map[string]bool
}

// NewAuthorityIndex builds the lookup from a precedence policy. Field
// overrides replace the category entry for that field.
func NewAuthorityIndex(policy model.PrecedencePolicy) *AuthorityIndex {
	idx := &AuthorityIndex{byField: make(map[model.Field]map[string]bool)}

	for _, f := range model.AllFields() {
		sources := policy.AuthoritativeFor(f)
		if len(sources) == 0 {
			continue
		}
		set := make(map[string]bool, len(sources))
		for _, s := range sources {
			set[s] = true
		}
		idx.byField[f] = set
	}
	return idx
}

// IsAuthoritative reports whether source is authoritative for field
func (a *AuthorityIndex) IsAuthoritative(field model.Field, source string) bool {
	return a.byField[field][source]
}

// HasAuthority reports whether any source is authoritative for field
func (a *AuthorityIndex) HasAuthority(field model.Field) bool {
	return len(a.byField[field]) > 0
}
