package decide

import (
	"fmt"
	"strings"

	"github.com/ppiankov/resubmit/internal/model"
)

// RecommendedAction turns a decision into a one-line instruction for the
// billing team
func RecommendedAction(claim *model.CanonicalClaim, d *model.EligibilityDecision) string {
	switch d.Eligibility {
	case model.Eligible:
		reason, ok := claim.DenialReasonText()
		if !ok {
			reason, ok = claim.DenialCode()
		}
		if !ok {
			return "Correct the denial cause and resubmit"
		}
		return fmt.Sprintf("Review and correct '%s' and resubmit", reason)

	case model.NeedsReview:
		if len(d.Rationale) == 0 {
			return "Route to billing review"
		}
		return "Route to billing review: " + d.Rationale[0]

	default:
		var vetoes []string
		for _, r := range d.DeterministicResults {
			if r.Veto && !r.Passed {
				vetoes = append(vetoes, r.RuleID)
			}
		}
		if len(vetoes) > 0 {
			return "Do not resubmit: blocked by " + strings.Join(vetoes, ", ")
		}
		return "Do not resubmit"
	}
}
