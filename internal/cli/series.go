package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
	"github.com/vietddude/acumba/internal/workflow"
)

var (
	seriesListID  int
	seriesProduct string
)

var seriesCmd = &cobra.Command{
	Use:       "series [welcome|drip]",
	Short:     "Create the campaigns of a built-in email series",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"welcome", "drip"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			var s *workflow.Series
			switch args[0] {
			case "welcome":
				s = workflow.WelcomeSeries(seriesListID, slog.Default())
			case "drip":
				s = workflow.DripSeries(seriesListID, seriesProduct, slog.Default())
			default:
				return fmt.Errorf("unknown series %q", args[0])
			}

			created, err := s.Create(ctx, app.Client())
			for _, c := range created {
				when := "immediately"
				if !c.SendAt.IsZero() {
					when = c.SendAt.Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: campaign %d, sending %s\n", c.Step, c.CampaignID, when)
			}
			return err
		})
	},
}

func init() {
	seriesCmd.Flags().IntVar(&seriesListID, "list-id", 0, "target list")
	seriesCmd.Flags().StringVar(&seriesProduct, "product", "Our Product", "product name of the drip series")
	_ = seriesCmd.MarkFlagRequired("list-id")
	rootCmd.AddCommand(seriesCmd)
}
