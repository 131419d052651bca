package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/acumba/internal/analytics"
	"github.com/vietddude/acumba/internal/control"
)

var (
	abListID    int
	abVariants  map[string]string
	abMetricArg string
)

var abtestCmd = &cobra.Command{
	Use:   "abtest",
	Short: "Create and analyze A/B tests",
}

var abtestCreateCmd = &cobra.Command{
	Use:   "create [name] [variants.yaml]",
	Short: "Create one campaign per variant of a test",
	Long: `Create one campaign per variant. The file holds a list of variants:

  - name: Control
    subject: New features are here
    content: <p>...</p>
  - name: Question
    subject: Want to see what's new?
    content: <p>...</p>`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		variants, err := readVariants(args[1])
		if err != nil {
			return err
		}
		test := analytics.NewABTest(args[0], abListID, slog.Default())
		for _, v := range variants {
			if err := test.AddVariant(v); err != nil {
				return err
			}
		}

		return withApp(func(ctx context.Context, app *control.App) error {
			campaigns, err := test.CreateCampaigns(ctx, app.Client())
			for _, v := range test.Variants() {
				if id, ok := campaigns[v.Name]; ok {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: campaign %d\n", v.Name, id)
				}
			}
			return err
		})
	},
}

var abtestAnalyzeCmd = &cobra.Command{
	Use:   "analyze [name]",
	Short: "Compare the sent campaigns of a test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		test := analytics.NewABTest(args[0], 0, slog.Default())
		names := make([]string, 0, len(abVariants))
		for name := range abVariants {
			names = append(names, name)
		}
		// Flag maps are unordered; report variants by name.
		slices.Sort(names)
		for _, name := range names {
			id, err := strconv.Atoi(abVariants[name])
			if err != nil {
				return fmt.Errorf("invalid campaign id for variant %s: %w", name, err)
			}
			if err := test.Track(name, id); err != nil {
				return err
			}
		}
		metric := analytics.Metric(abMetricArg)
		if _, err := metric.Value(analytics.Rates{}); err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *control.App) error {
			if _, err := test.Analyze(ctx, app.Analyzer()); err != nil {
				slog.Warn("Some variants could not be analyzed", "error", err)
			}
			if err := test.Render(cmd.OutOrStdout()); err != nil {
				return err
			}
			if winner, ok, _ := test.Winner(metric); ok {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nWinner by %s: %s\n", metric, winner.Variant)
			}
			return nil
		})
	},
}

func readVariants(path string) ([]analytics.Variant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variants: %w", err)
	}
	var variants []analytics.Variant
	if err := yaml.Unmarshal(data, &variants); err != nil {
		return nil, fmt.Errorf("failed to parse variants: %w", err)
	}
	if len(variants) < 2 {
		return nil, fmt.Errorf("an A/B test needs at least two variants, got %d", len(variants))
	}
	return variants, nil
}

func init() {
	abtestCreateCmd.Flags().IntVar(&abListID, "list-id", 0, "target list")
	_ = abtestCreateCmd.MarkFlagRequired("list-id")

	abtestAnalyzeCmd.Flags().StringToStringVar(&abVariants, "variant", nil, "variant=campaign_id (repeatable)")
	abtestAnalyzeCmd.Flags().StringVar(&abMetricArg, "metric", string(analytics.MetricOpenRate),
		"open_rate, click_rate, bounce_rate or unsubscribe_rate")
	_ = abtestAnalyzeCmd.MarkFlagRequired("variant")

	abtestCmd.AddCommand(abtestCreateCmd, abtestAnalyzeCmd)
	rootCmd.AddCommand(abtestCmd)
}
