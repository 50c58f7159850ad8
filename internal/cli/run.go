package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/resubmit/internal/exitcode"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/pipeline"
	"github.com/ppiankov/resubmit/internal/source"
	"github.com/ppiankov/resubmit/internal/store"
)

var (
	runTimeout    time.Duration
	schemaVersion string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <source=file>...",
	Short: "Ingest source exports and decide every affected claim",
	Long: `Run ingests one export file per argument and decides every claim the
records touch:
- Map each record to the canonical claim model (unmappable records are quarantined)
- Reconcile records from different systems into one claim
- Apply the deterministic rules and the scorer
- Append one decision per changed claim to the decision log

The source id is given as source=path, or taken from the file name.
Supported formats: .json (array), .jsonl, .csv, .tsv

Example:
  resubmit run alpha=exports/alpha.csv beta=exports/beta.json
  resubmit run exports/alpha.csv --as-of 2025-07-30 --workers 8`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd, runBindings) },
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.Int("workers", 0, "number of claims decided in parallel (default: number of CPUs)")
	f.String("as-of", "", "reference date for date rules, YYYY-MM-DD (default: today)")
	f.String("output-dir", "", "directory for run_summary.json and resubmission_candidates.json")
	f.String("store-dir", "", "state directory for the record and decision logs")
	f.String("scorer", "", "scorer kind: heuristic, llm, hybrid, none")
	f.DurationVar(&runTimeout, "timeout", 30*time.Minute, "total timeout for the run")
	f.StringVar(&schemaVersion, "schema-version", "", "schema version recorded on every ingested record")

}

// runBindings maps run flags to config keys
var runBindings = map[string]string{
	"workers":    "concurrency.workers",
	"as-of":      "input.as_of",
	"output-dir": "output.dir",
	"store-dir":  "store.dir",
	"scorer":     "scorer.kind",
}

// inputArg is one source=path argument
type inputArg struct {
	sourceID string
	path     string
}

func parseInputArg(arg string) (inputArg, error) {
	if id, path, ok := strings.Cut(arg, "="); ok {
		if id == "" || path == "" {
			return inputArg{}, fmt.Errorf("invalid input %q, want source=path", arg)
		}
		return inputArg{sourceID: id, path: path}, nil
	}
	base := filepath.Base(arg)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	if id == "" {
		return inputArg{}, fmt.Errorf("cannot derive source id from %q", arg)
	}
	return inputArg{sourceID: id, path: arg}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcode.ConfigError)
	}
	log := setupLogger(cfg)

	// Read every input before anything is written
	ingestedAt := time.Now().UTC()
	var batch []model.RawRecord
	for _, arg := range args {
		in, err := parseInputArg(arg)
		if err != nil {
			log.Error().Err(err).Msg("invalid argument")
			os.Exit(exitcode.UsageError)
		}
		records, err := source.ReadFile(in.path, source.Options{
			SourceID:      in.sourceID,
			SchemaVersion: schemaVersion,
			IngestedAt:    ingestedAt,
		})
		if err != nil {
			log.Error().Err(err).Str("file", in.path).Msg("read input failed")
			os.Exit(exitcode.UsageError)
		}
		log.Info().Str("source_id", in.sourceID).Str("file", in.path).Int("records", len(records)).Msg("input read")
		batch = append(batch, records...)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, runTimeout)
	defer cancelTimeout()

	p, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		exitPipeline(log, err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("close stores")
		}
	}()

	report, runErr := p.Run(ctx, batch)
	if report != nil {
		if err := writeRunOutputs(cfg.Output.Dir, report); err != nil {
			log.Error().Err(err).Msg("write outputs failed")
		}
		printSummary(report, cfg.Output.Dir)
	}
	if runErr != nil {
		_ = p.Close()
		exitPipeline(log, runErr)
	}

	if report.Summary.Quarantined > 0 || report.Summary.Failed > 0 {
		_ = p.Close()
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}

// exitPipeline maps a pipeline failure to a process exit code
func exitPipeline(log zerolog.Logger, err error) {
	var pe *pipeline.PipelineError
	if errors.As(err, &pe) {
		log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("run failed")
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			os.Exit(exitcode.Cancelled)
		case pe.Phase == pipeline.PhaseConfig:
			os.Exit(exitcode.ConfigError)
		case pe.Phase == pipeline.PhaseStore:
			os.Exit(exitcode.StoreError)
		default:
			os.Exit(exitcode.RunError)
		}
	}
	log.Error().Err(err).Msg("run failed")
	os.Exit(exitcode.RunError)
}

// writeRunOutputs writes the run summary and the resubmission candidates
func writeRunOutputs(dir string, report *pipeline.Report) error {
	if dir == "" {
		return nil
	}
	if _, err := store.WriteCandidates(dir, report.Candidates); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report.Summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "run_summary.json"), append(data, '\n'), 0644)
}

func printSummary(report *pipeline.Report, outputDir string) {
	s := report.Summary
	fmt.Printf("\n")
	fmt.Printf("Run %s complete (%.1fs)\n", s.RunID, s.Duration.Seconds())
	fmt.Printf("  Records:       %d", s.Records)
	for _, src := range s.Sources() {
		fmt.Printf("  %s=%d", src, s.RecordsBySource[src])
	}
	fmt.Printf("\n")
	fmt.Printf("  Duplicates:    %d\n", s.Duplicates)
	fmt.Printf("  Quarantined:   %d\n", s.Quarantined)
	fmt.Printf("  Claims:        %d\n", s.Claims)
	fmt.Printf("  Eligible:      %d\n", s.Eligible)
	fmt.Printf("  Ineligible:    %d\n", s.Ineligible)
	fmt.Printf("  Needs review:  %d\n", s.NeedsReview)
	fmt.Printf("  Unchanged:     %d\n", s.Unchanged)
	fmt.Printf("  Superseded:    %d\n", s.Superseded)
	if s.ScorerFailures > 0 || s.Failed > 0 || s.Cancelled > 0 {
		fmt.Printf("  Scorer failed: %d  Failed: %d  Cancelled: %d\n", s.ScorerFailures, s.Failed, s.Cancelled)
	}
	if outputDir != "" {
		fmt.Printf("\n✓ Candidates: %s\n", filepath.Join(outputDir, store.CandidatesFile))
	}
}
