package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	attentionJSON bool
	attentionTier string
)

var attentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "Print the shipment attention board",
	Long: `Scores every shipment with open work against issues, pending and
overdue actions, cutoff proximity, and staleness, then prints the board
ranked hottest first.`,
	RunE: runAttention,
}

func init() {
	attentionCmd.Flags().BoolVar(&attentionJSON, "json", false, "emit the board as JSON")
	attentionCmd.Flags().StringVar(&attentionTier, "tier", "", "only show one tier (strong|medium|weak|noise)")
}

func runAttention(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	work, err := a.store.ListShipmentWork(ctx)
	if err != nil {
		return err
	}
	entries := a.engine.Rank(work, time.Now())
	if attentionTier != "" {
		kept := entries[:0]
		for _, e := range entries {
			if string(e.Tier) == attentionTier {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if attentionJSON {
		return printJSON(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SHIPMENT\tSCORE\tTIER\tISSUES\tPENDING\tOVERDUE\tCUTOFF\tIDLE")
	for _, e := range entries {
		c := e.Components
		cutoff := "-"
		if c.NearestCutoffDays != nil {
			cutoff = fmt.Sprintf("%s %+dd", c.NearestCutoffType, *c.NearestCutoffDays)
		}
		fmt.Fprintf(w, "%s\t%.0f\t%s\t%d\t%d\t%d\t%s\t%dd\n",
			c.ShipmentID, e.Score, e.Tier, len(c.IssueTypes),
			c.PendingActions, c.OverdueActions, cutoff, c.DaysSinceActivity)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No shipments with open work.")
	}
	return nil
}
