package resolve

import (
	"sort"

	"github.com/ppiankov/resubmit/internal/model"
)

// GroupByClaim reduces candidates into per-claim groups
func GroupByClaim(candidates []model.Candidate) map[string][]model.Candidate {
	groups := make(map[string][]model.Candidate)
	for _, c := range candidates {
		groups[c.ClaimID] = append(groups[c.ClaimID], c)
	}
	return groups
}

// ClaimIDs returns the group keys, sorted
func ClaimIDs(groups map[string][]model.Candidate) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// canonicalOrder sorts candidates so resolution never depends on arrival
// order, and drops repeats of the same raw record keeping the earliest ingest.
func canonicalOrder(candidates []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.RecordFingerprint != b.RecordFingerprint {
			return a.RecordFingerprint < b.RecordFingerprint
		}
		return a.IngestedAt.Before(b.IngestedAt)
	})

	deduped := out[:0]
	for _, c := range out {
		if n := len(deduped); n > 0 && c.SourceID == deduped[n-1].SourceID && c.RecordFingerprint == deduped[n-1].RecordFingerprint {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}
