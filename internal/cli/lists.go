package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
)

var listDescription string

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show the mailing lists of the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			lists, err := app.Client().GetLists(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tSUBSCRIBERS\tDESCRIPTION")
			for _, l := range lists {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", l.ID, l.Name, l.Subscribers, l.Description)
			}
			return w.Flush()
		})
	},
}

var listsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a mailing list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			id, err := app.Client().CreateList(ctx, args[0], listDescription)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created list %q with id %d\n", args[0], id)
			return nil
		})
	},
}

func init() {
	listsCreateCmd.Flags().StringVar(&listDescription, "description", "", "list description")
	listsCmd.AddCommand(listsCreateCmd)
	rootCmd.AddCommand(listsCmd)
}
