package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/control"
)

var importCmd = &cobra.Command{
	Use:   "import [list_id] [file.csv]",
	Short: "Add the subscribers of a CSV file to a list",
	Long: `Add every row of a CSV file to a list. The header row names the columns;
the "email" column is required and every other column becomes a merge field.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	listID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid list id: %w", err)
	}
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	subs, err := readSubscribers(f)
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, app *control.App) error {
		res, err := app.Runner().AddSubscribers(ctx, listID, subs)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Run %s: %d/%d added (%.1f%%), %d failed, %d dead-lettered\n",
			res.RunID, res.Succeeded, res.Total, res.SuccessRate(), res.Failed, res.DeadLettered)
		for _, it := range res.Failures(10) {
			_, _ = fmt.Fprintf(out, "  %s: %v\n", it.Key, it.Err)
		}
		return nil
	})
}

// readSubscribers parses a CSV with a header row containing an email column.
func readSubscribers(r io.Reader) ([]bulk.Subscriber, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	emailCol := -1
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
		if header[i] == "email" {
			emailCol = i
		}
	}
	if emailCol < 0 {
		return nil, errors.New("CSV header has no email column")
	}

	var subs []bulk.Subscriber
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		sub := bulk.Subscriber{Email: strings.TrimSpace(row[emailCol])}
		for i, v := range row {
			if i == emailCol || v == "" {
				continue
			}
			if sub.Fields == nil {
				sub.Fields = make(map[string]string)
			}
			sub.Fields[header[i]] = v
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
