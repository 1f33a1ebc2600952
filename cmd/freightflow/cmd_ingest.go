package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

var (
	mailboxPath string
	afterFlag   string
	beforeFlag  string
	maxMessages int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch a window of messages and run them through the pipeline",
	Long: `Fetches messages received in [--after, --before) from the JSON
mailbox and processes them concurrently. Already-chronicled messages are
skipped as duplicates; failures are recorded and retried on the next run
until the retry cap.

Example:
  freightflow ingest --mailbox inbox.json --after 2026-02-09T00:00:00Z`,
	RunE: runIngest,
}

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Re-run extraction over already-chronicled messages",
	Long: `Re-extracts the messages in the window with current patterns, rules,
and prompts, updating each chronicle in place. Messages in the window that
were never chronicled go through the full pipeline. Shipment links are not
reassigned.`,
	RunE: runReanalyze,
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, reanalyzeCmd} {
		c.Flags().StringVar(&mailboxPath, "mailbox", "", "path to the JSON mailbox export (required)")
		c.Flags().StringVar(&afterFlag, "after", "", "window start, RFC3339 (default: 24h ago)")
		c.Flags().StringVar(&beforeFlag, "before", "", "window end, RFC3339 (default: now)")
		c.Flags().IntVar(&maxMessages, "max", 0, "cap on fetched messages (0 = no cap)")
		c.Flags().IntVar(&workers, "concurrency", 0, "worker count (default: FREIGHTFLOW_CONCURRENCY)")
		_ = c.MarkFlagRequired("mailbox")
	}
}

// window resolves the --after/--before flags.
func window() (after, before time.Time, err error) {
	before = time.Now()
	if beforeFlag != "" {
		before, err = time.Parse(time.RFC3339, beforeFlag)
		if err != nil {
			return after, before, fmt.Errorf("--before: %w", err)
		}
	}
	after = before.Add(-24 * time.Hour)
	if afterFlag != "" {
		after, err = time.Parse(time.RFC3339, afterFlag)
		if err != nil {
			return after, before, fmt.Errorf("--after: %w", err)
		}
	}
	if !after.Before(before) {
		return after, before, fmt.Errorf("window inverted: %s >= %s",
			after.Format(time.RFC3339), before.Format(time.RFC3339))
	}
	return after, before, nil
}

func fetchWindow(cmd *cobra.Command, mail *fileMailSource) ([]types.Message, time.Time, time.Time, error) {
	after, before, err := window()
	if err != nil {
		return nil, after, before, err
	}
	msgs, err := mail.Fetch(cmd.Context(), after, before, maxMessages)
	if err != nil {
		return nil, after, before, err
	}
	logging.L(logging.CategoryBoot).Infow("mailbox window fetched",
		"messages", len(msgs), "after", after, "before", before)
	return msgs, after, before, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mail := newFileMailSource(mailboxPath)
	a, err := openApp(ctx, mail)
	if err != nil {
		return err
	}
	defer a.close()

	msgs, after, before, err := fetchWindow(cmd, mail)
	if err != nil {
		return err
	}
	summary := a.proc.RunBatch(ctx, msgs, a.workerCount(), after, before)
	return printJSON(summary)
}

func runReanalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mail := newFileMailSource(mailboxPath)
	a, err := openApp(ctx, mail)
	if err != nil {
		return err
	}
	defer a.close()

	msgs, _, _, err := fetchWindow(cmd, mail)
	if err != nil {
		return err
	}
	summary := a.proc.Reanalyze(ctx, msgs, a.workerCount())
	return printJSON(summary)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
