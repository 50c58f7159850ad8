package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/resubmit/internal/ledger"
)

var (
	exportFormat string
	exportOut    string
	exportAll    bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decisions for reporting",
	Long: `Export the current decision of every claim as Parquet or JSON for
downstream reporting. --all exports every event of the log instead.

Example:
  resubmit export --format parquet --out decisions.parquet
  resubmit export --format json --all --out decision_log.json`,
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd, storeBindings) },
	RunE:    runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "parquet", "output format: parquet or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "decisions.parquet", "output path")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every decision event, not only current decisions")
	exportCmd.Flags().String("store-dir", "", "state directory of the decision log")
}

func runExport(cmd *cobra.Command, args []string) error {
	l, _ := openLedger(cmd.Context())
	defer func() { _ = l.Close() }()

	decisions := l.CurrentAll()
	if exportAll {
		decisions = l.Events()
	}

	switch exportFormat {
	case "parquet":
		if err := ledger.ExportParquet(decisions, exportOut); err != nil {
			return err
		}
	case "json":
		data, err := json.MarshalIndent(decisions, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal decisions: %w", err)
		}
		if err := os.WriteFile(exportOut, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
	default:
		return fmt.Errorf("unknown format %q (supported: parquet, json)", exportFormat)
	}

	fmt.Printf("✓ Exported %d decisions: %s\n", len(decisions), exportOut)
	return nil
}
