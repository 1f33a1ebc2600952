// freightflow ingests freight-forwarding email, extracts structured
// shipment data through a pattern-first / LLM-escalation pipeline, and
// maintains the shipment board in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"freightflow/internal/logging"
)

var (
	// Global flags
	verbose bool

	// workers backs the per-command --concurrency flag.
	workers int
)

var rootCmd = &cobra.Command{
	Use:   "freightflow",
	Short: "Freight email intelligence pipeline",
	Long: `freightflow turns a freight forwarder's mailbox into structured data.

Each message runs through a deterministic pattern classifier first; only
low-confidence messages escalate through the model ladder (haiku, sonnet,
opus). Extractions are scored, chronicled, and linked to shipments whose
stage, actions, and issues drive the attention board.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reanalyzeCmd)
	rootCmd.AddCommand(attentionCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
