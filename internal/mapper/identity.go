package mapper

import (
	"strings"

	"github.com/google/uuid"
	"github.com/ppiankov/resubmit/internal/model"
)

// claimNamespace scopes claim ids generated by this system
var claimNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:resubmit:claim"))

// DefaultIdentity is used when a mapping set declares no identity fields
var DefaultIdentity = []model.Field{model.FieldClaimNumber}

// ClaimID derives the stable claim id from identity field values. It is a
// pure function of its inputs, so re-ingesting a record yields the same id.
func ClaimID(identity []model.Field, values map[model.Field]any) string {
	parts := make([]string, 0, len(identity))
	for _, f := range identity {
		parts = append(parts, string(f)+"="+model.ValueKey(values[f]))
	}
	return uuid.NewSHA1(claimNamespace, []byte(strings.Join(parts, "\x00"))).String()
}
