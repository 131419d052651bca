package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report [campaign_id]",
	Short: "Analyze the performance of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	campaignID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}

	return withApp(func(ctx context.Context, app *control.App) error {
		report, err := app.Analyzer().Report(ctx, campaignID)
		if err != nil {
			return err
		}
		if reportJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return report.Render(cmd.OutOrStdout())
	})
}
