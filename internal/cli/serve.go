package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/resubmit/internal/api"
	"github.com/ppiankov/resubmit/internal/exitcode"
	"github.com/ppiankov/resubmit/internal/pipeline"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the batch and decision API over HTTP",
	Long: `Serve accepts batches of raw records and answers decision queries:
  GET  /healthz
  POST /v1/batches
  GET  /v1/decisions/:claim_id
  GET  /v1/decisions/:claim_id/history

Example:
  resubmit serve --addr :8080`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{"addr": "server.addr", "store-dir": "store.dir"})
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("store-dir", "", "state directory for the record and decision logs")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcode.ConfigError)
	}
	log := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		exitPipeline(log, err)
	}
	defer func() { _ = p.Close() }()

	srv := api.NewServer(p, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
