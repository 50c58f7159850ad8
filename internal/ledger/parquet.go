package ledger

import (
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/ppiankov/resubmit/internal/model"
)

// DecisionRow is the flat export shape consumed by reporting
type DecisionRow struct {
	DecisionID         string   `parquet:"decision_id"`
	ClaimID            string   `parquet:"claim_id"`
	Eligibility        string   `parquet:"eligibility"`
	Score              *float64 `parquet:"score,optional"`
	ModelVersion       string   `parquet:"model_version"`
	PolicyVersion      string   `parquet:"policy_version"`
	RulesetVersion     string   `parquet:"ruleset_version"`
	Supersedes         *string  `parquet:"supersedes,optional"`
	DecidedAtMillis    int64    `parquet:"decided_at_ms"`
	RulesPassed        int32    `parquet:"rules_passed"`
	RulesFailed        int32    `parquet:"rules_failed"`
	RulesIndeterminate int32    `parquet:"rules_indeterminate"`
	VetoFailed         bool     `parquet:"veto_failed"`
	Sources            string   `parquet:"sources"`
	Rationale          string   `parquet:"rationale"`
	RecommendedAction  string   `parquet:"recommended_action"`
}

// NewDecisionRow flattens a decision
func NewDecisionRow(d model.EligibilityDecision) DecisionRow {
	row := DecisionRow{
		DecisionID:        d.DecisionID,
		ClaimID:           d.ClaimID,
		Eligibility:       string(d.Eligibility),
		Score:             d.Inference.Score,
		ModelVersion:      d.Inference.ModelVersion,
		PolicyVersion:     d.PolicyVersion,
		RulesetVersion:    d.RulesetVersion,
		DecidedAtMillis:   d.DecidedAt.UnixMilli(),
		Sources:           strings.Join(d.SourceIDs, ","),
		Rationale:         strings.Join(d.Rationale, "; "),
		RecommendedAction: d.RecommendedAction,
	}
	if d.Supersedes != "" {
		s := d.Supersedes
		row.Supersedes = &s
	}
	for _, r := range d.DeterministicResults {
		switch {
		case r.Indeterminate:
			row.RulesIndeterminate++
		case r.Passed:
			row.RulesPassed++
		default:
			row.RulesFailed++
		}
		if r.Veto && !r.Passed {
			row.VetoFailed = true
		}
	}
	return row
}

// ExportParquet writes decisions to path as flat rows
func ExportParquet(decisions []model.EligibilityDecision, path string) error {
	rows := make([]DecisionRow, len(decisions))
	for i, d := range decisions {
		rows[i] = NewDecisionRow(d)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}

	writer := parquet.NewGenericWriter[DecisionRow](f)
	if _, err := writer.Write(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}

// ReadParquet reads an export back
func ReadParquet(path string) ([]DecisionRow, error) {
	rows, err := parquet.ReadFile[DecisionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return rows, nil
}
