package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/control"
	"github.com/vietddude/acumba/internal/core/domain"
)

var (
	sendTo       string
	sendSubject  string
	sendContent  string
	sendCategory string

	triggerTo   string
	triggerVars map[string]string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single transactional email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			id, err := app.Client().SendSingleEmail(ctx, domain.SingleEmail{
				To:       sendTo,
				Subject:  sendSubject,
				Content:  sendContent,
				Category: sendCategory,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Email sent to %s (id %d)\n", sendTo, id)
			return nil
		})
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger [name]",
	Short: "Send a triggered email from a template",
	Long: `Render a trigger template with --var values and send it to --to.
Without a name, list the registered triggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			if len(args) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(app.Triggers().Names(), "\n"))
				return nil
			}
			id, err := app.Triggers().Send(ctx, args[0], triggerTo, triggerVars)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Triggered %s sent to %s (id %d)\n", args[0], triggerTo, id)
			return nil
		})
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "email subject")
	sendCmd.Flags().StringVar(&sendContent, "content", "", "HTML content")
	sendCmd.Flags().StringVar(&sendCategory, "category", "", "email category")
	_ = sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)

	triggerCmd.Flags().StringVar(&triggerTo, "to", "", "recipient address")
	triggerCmd.Flags().StringToStringVar(&triggerVars, "var", nil, "template variable as key=value (repeatable)")
	rootCmd.AddCommand(triggerCmd)
}
