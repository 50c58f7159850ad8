package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/resubmit/internal/model"
)

// CandidatesFile is the export of claims cleared for resubmission
const CandidatesFile = "resubmission_candidates.json"

// ResubmissionCandidate is one claim cleared for resubmission
type ResubmissionCandidate struct {
	ClaimID            string   `json:"claim_id"`
	ClaimNumber        string   `json:"claim_number,omitempty"`
	ResubmissionReason string   `json:"resubmission_reason"`
	SourceSystems      []string `json:"source_systems"`
	RecommendedChanges string   `json:"recommended_changes"`
	Score              *float64 `json:"score"`
	DecisionID         string   `json:"decision_id"`
}

// NewResubmissionCandidate builds the export entry for an eligible decision
func NewResubmissionCandidate(claim *model.CanonicalClaim, d model.EligibilityDecision) ResubmissionCandidate {
	number, _ := claim.ClaimNumber()
	reason, ok := claim.DenialReasonText()
	if !ok {
		reason, _ = claim.DenialCode()
	}
	return ResubmissionCandidate{
		ClaimID:            d.ClaimID,
		ClaimNumber:        number,
		ResubmissionReason: reason,
		SourceSystems:      append([]string(nil), d.SourceIDs...),
		RecommendedChanges: d.RecommendedAction,
		Score:              d.Inference.Score,
		DecisionID:         d.DecisionID,
	}
}

// WriteCandidates writes the candidates, sorted by claim id, as a JSON array
// to dir/resubmission_candidates.json
func WriteCandidates(dir string, candidates []ResubmissionCandidate) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	sorted := append([]ResubmissionCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ClaimID < sorted[j].ClaimID })
	if sorted == nil {
		sorted = []ResubmissionCandidate{}
	}

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	path := filepath.Join(dir, CandidatesFile)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("write candidates: %w", err)
	}
	return path, nil
}
