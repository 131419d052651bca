package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
	"github.com/vietddude/acumba/internal/resilience"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the circuit breaker, error counts and dead-letter depth",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			status, err := app.Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.Debug)
			_, _ = fmt.Fprintln(w, "BREAKER\tSTATE\tFAILURES\tTHRESHOLD\tCOOLDOWN")
			b := status.Breaker
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", b.Name, b.State, b.Failures, b.FailureThreshold, b.Cooldown)
			_, _ = fmt.Fprintln(w)
			_, _ = fmt.Fprintln(w, "ERROR KIND\tCOUNT")
			for _, k := range resilience.Kinds {
				_, _ = fmt.Fprintf(w, "%s\t%d\n", k, status.Errors.Get(k))
			}
			_, _ = fmt.Fprintf(w, "\nPENDING DEAD LETTERS\t%d\n", status.Pending)
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
