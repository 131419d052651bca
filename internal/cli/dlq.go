package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
	"github.com/vietddude/acumba/internal/core/domain"
)

var purgeStatuses []string

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead-letter queue of failed bulk items",
	Args:  cobra.NoArgs,
	RunE:  runDLQList,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending and abandoned operations",
	Args:  cobra.NoArgs,
	RunE:  runDLQList,
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay one batch of pending operations now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			res, err := app.Replayer().ReplayOnce(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "resolved=%d retried=%d abandoned=%d skipped=%d\n",
				res.Resolved, res.Retried, res.Abandoned, res.Skipped)
			return nil
		})
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete resolved and abandoned operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses := make([]domain.FailedOperationStatus, len(purgeStatuses))
		for i, s := range purgeStatuses {
			statuses[i] = domain.FailedOperationStatus(s)
		}
		return withApp(func(ctx context.Context, app *control.App) error {
			n, err := app.PurgeDeadLetters(ctx, statuses...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d operations\n", n)
			return nil
		})
	},
}

func init() {
	dlqPurgeCmd.Flags().StringSliceVar(&purgeStatuses, "status", nil, "statuses to purge (pending, resolved, abandoned)")
	dlqCmd.AddCommand(dlqListCmd, dlqReplayCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}

func runDLQList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, app *control.App) error {
		ops, err := app.DeadLetters().GetAll(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tKIND\tRETRIES\tLAST ATTEMPT\tERROR")
		for _, op := range ops {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				op.ID, op.Type, op.Status, op.ErrorKind, op.RetryCount,
				op.LastAttempt.Format(time.RFC3339), op.Error)
		}
		return w.Flush()
	})
}
