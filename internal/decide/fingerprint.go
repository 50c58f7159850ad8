package decide

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ppiankov/resubmit/internal/model"
)

var decisionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:resubmit:decision"))

// Fingerprint hashes everything a decision depends on: the canonical field
// values and states, the ruleset and policy versions, and the scorer model
// version. Provenance is excluded, so the same values arriving from a
// different record do not count as a change.
func Fingerprint(claim *model.CanonicalClaim, rulesetVersion, policyVersion, modelVersion string) string {
	h := sha256.New()
	field := func(k, v string) {
		// Length-prefixed so adjacent values cannot run together
		fmt.Fprintf(h, "%d:%s=%d:%s\n", len(k), k, len(v), v)
	}

	field("claim_id", claim.ClaimID)
	for _, f := range model.AllFields() {
		fv := claim.Field(f)
		value := ""
		if fv.State == model.StateKnown {
			value = model.ValueKey(fv.Value)
		}
		field(string(f), string(fv.State)+"|"+value)
	}
	field("ruleset_version", rulesetVersion)
	field("policy_version", policyVersion)
	field("model_version", modelVersion)

	_, _ = io.WriteString(h, "end")
	return hex.EncodeToString(h.Sum(nil))
}

// DecisionID derives a stable id from the claim, its input fingerprint and
// the decision it supersedes
func DecisionID(claimID, fingerprint, supersedes string) string {
	return uuid.NewSHA1(decisionNamespace, []byte(claimID+"|"+fingerprint+"|"+supersedes)).String()
}
