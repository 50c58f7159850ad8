package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/resubmit/internal/exitcode"
	"github.com/ppiankov/resubmit/internal/ledger"
	"github.com/ppiankov/resubmit/internal/model"
)

var showHistory bool

// decisionsCmd represents the decisions command
var decisionsCmd = &cobra.Command{
	Use:   "decisions [claim-id]",
	Short: "Show decisions from the decision log",
	Long: `Print the current decision of a claim as JSON, or its full history
with --history. Without a claim id, print the current decision of every
claim.

Example:
  resubmit decisions
  resubmit decisions 0b3c6f0e-1d59-5d8a-9a43-6a3e9d1c2f11 --history`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd, storeBindings) },
	RunE:    runDecisions,
}

// storeBindings maps the store flags shared by read-only commands
var storeBindings = map[string]string{
	"store-dir": "store.dir",
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.Flags().BoolVar(&showHistory, "history", false, "print every decision for the claim, oldest first")
	decisionsCmd.Flags().String("store-dir", "", "state directory of the decision log")
}

// openLedger opens the configured decision log or exits
func openLedger(ctx context.Context) (*ledger.Ledger, model.Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcode.ConfigError)
	}
	log := setupLogger(cfg)

	l, err := ledger.OpenConfigured(ctx, cfg.Store, log)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("open decision log failed")
		os.Exit(exitcode.StoreError)
	}
	return l, cfg
}

func runDecisions(cmd *cobra.Command, args []string) error {
	l, _ := openLedger(cmd.Context())
	defer func() { _ = l.Close() }()

	var out any
	switch {
	case len(args) == 0:
		out = l.CurrentAll()
	case showHistory:
		history := l.History(args[0])
		if len(history) == 0 {
			return fmt.Errorf("no decision for claim %s", args[0])
		}
		out = history
	default:
		d, ok := l.Current(args[0])
		if !ok {
			return fmt.Errorf("no decision for claim %s", args[0])
		}
		out = d
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
