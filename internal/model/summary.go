package model

import (
	"sort"
	"time"
)

// RunSummary counts the outcomes of one batch run
type RunSummary struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	Duration        time.Duration  `json:"duration_ns"`
	Records         int            `json:"records"`
	RecordsBySource map[string]int `json:"records_by_source"`
	Duplicates      int            `json:"duplicate_records"` // Already ingested
	Quarantined     int            `json:"quarantined"`
	MappingWarnings int            `json:"mapping_warnings"`
	Claims          int            `json:"claims"`
	AmbiguousFields int            `json:"ambiguous_fields"`
	Eligible        int            `json:"eligible"`
	Ineligible      int            `json:"ineligible"`
	NeedsReview     int            `json:"needs_review"`
	Unchanged       int            `json:"unchanged"`  // Current decision already reflects the inputs
	Superseded      int            `json:"superseded"` // New decision replaced a prior one
	ScorerFailures  int            `json:"scorer_failures"`
	Failed          int            `json:"failed"`
	Cancelled       int            `json:"cancelled"`
}

// Count adds a decision outcome to the summary
func (s *RunSummary) Count(e Eligibility) {
	switch e {
	case Eligible:
		s.Eligible++
	case Ineligible:
		s.Ineligible++
	case NeedsReview:
		s.NeedsReview++
	}
}

// Sources returns the source ids seen in the run, sorted
func (s *RunSummary) Sources() []string {
	out := make([]string, 0, len(s.RecordsBySource))
	for id := range s.RecordsBySource {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Decided returns the number of claims that ended the run with a verdict
func (s *RunSummary) Decided() int {
	return s.Eligible + s.Ineligible + s.NeedsReview
}
