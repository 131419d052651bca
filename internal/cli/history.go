package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [campaign_id]",
	Short: "Show the saved report snapshots of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		campaignID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid campaign id: %w", err)
		}
		return withApp(func(ctx context.Context, app *control.App) error {
			snaps, err := app.Snapshots().ListByCampaign(ctx, campaignID, historyLimit)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No snapshots for campaign %d\n", campaignID)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "TAKEN\tDELIVERED\tOPEN\tCLICK\tBOUNCE\tUNSUBSCRIBE")
			for _, s := range snaps {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%.2f%%\t%.2f%%\t%.2f%%\t%.2f%%\n",
					s.TakenAt.Format("2006-01-02 15:04"), s.Stats.TotalDelivered,
					s.OpenRate, s.ClickRate, s.BounceRate, s.UnsubscribeRate)
			}
			return w.Flush()
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of snapshots to show")
	rootCmd.AddCommand(historyCmd)
}
