package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/resilience"
)

// Metric names a rate variants are compared on.
type Metric string

const (
	MetricOpenRate        Metric = "open_rate"
	MetricClickRate       Metric = "click_rate"
	MetricBounceRate      Metric = "bounce_rate"
	MetricUnsubscribeRate Metric = "unsubscribe_rate"
)

// Metrics lists every metric in report order.
var Metrics = []Metric{MetricOpenRate, MetricClickRate, MetricBounceRate, MetricUnsubscribeRate}

// LowerIsBetter reports whether the smallest value wins.
func (m Metric) LowerIsBetter() bool {
	return m == MetricBounceRate || m == MetricUnsubscribeRate
}

// Value extracts the metric from r.
func (m Metric) Value(r Rates) (float64, error) {
	switch m {
	case MetricOpenRate:
		return r.OpenRate, nil
	case MetricClickRate:
		return r.ClickRate, nil
	case MetricBounceRate:
		return r.BounceRate, nil
	case MetricUnsubscribeRate:
		return r.UnsubscribeRate, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", m)
	}
}

// Variant is one version of the tested campaign.
type Variant struct {
	Name      string `json:"name" yaml:"name"`
	Subject   string `json:"subject" yaml:"subject"`
	Content   string `json:"content" yaml:"content"`
	PreHeader string `json:"pre_header,omitempty" yaml:"pre_header"`
}

// VariantResult is the measured outcome of a variant.
type VariantResult struct {
	Variant    string               `json:"variant"`
	CampaignID int                  `json:"campaign_id"`
	Stats      domain.CampaignStats `json:"stats"`
	Rates      Rates                `json:"rates"`
}

// CampaignCreator creates campaigns.
type CampaignCreator interface {
	CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error)
}

// ABTest sends variants of a campaign to the same list and compares them.
// It is not safe for concurrent use.
type ABTest struct {
	name   string
	listID int
	log    *slog.Logger

	variants  []Variant
	campaigns map[string]int
	results   []VariantResult
}

// NewABTest creates a test targeting listID.
func NewABTest(name string, listID int, logger *slog.Logger) *ABTest {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ABTest{
		name:      name,
		listID:    listID,
		log:       logger.With("ab_test", name),
		campaigns: make(map[string]int),
	}
}

func (t *ABTest) Name() string { return t.name }

// AddVariant registers v. Names must be unique.
func (t *ABTest) AddVariant(v Variant) error {
	if err := resilience.ValidateRequired("variant_name", v.Name); err != nil {
		return err
	}
	if slices.ContainsFunc(t.variants, func(o Variant) bool { return o.Name == v.Name }) {
		return resilience.Validation("add_variant", fmt.Sprintf("variant %q already exists", v.Name))
	}
	t.variants = append(t.variants, v)
	return nil
}

// Variants returns the registered variants.
func (t *ABTest) Variants() []Variant {
	return slices.Clone(t.variants)
}

// CampaignName is the campaign name used for a variant.
func (t *ABTest) CampaignName(variant string) string {
	return t.name + " - " + variant
}

// CreateCampaigns creates one campaign per variant. A failed variant is
// skipped; the joined failures are returned alongside the campaigns that
// were created, keyed by variant name.
func (t *ABTest) CreateCampaigns(ctx context.Context, c CampaignCreator) (map[string]int, error) {
	var errs []error
	for _, v := range t.variants {
		if _, done := t.campaigns[v.Name]; done {
			continue
		}
		id, err := c.CreateCampaign(ctx, domain.CampaignParams{
			Name:      t.CampaignName(v.Name),
			Subject:   v.Subject,
			Content:   v.Content,
			PreHeader: v.PreHeader,
			ListIDs:   []int{t.listID},
		})
		if err != nil {
			t.log.Error("Failed to create variant campaign", "variant", v.Name, "error", err)
			errs = append(errs, fmt.Errorf("variant %s: %w", v.Name, err))
			continue
		}
		t.log.Info("Created variant campaign", "variant", v.Name, "campaign_id", id)
		t.campaigns[v.Name] = id
	}
	return t.Campaigns(), errors.Join(errs...)
}

// Track records campaignID as the campaign of an already sent variant,
// registering the variant if needed.
func (t *ABTest) Track(variant string, campaignID int) error {
	if err := resilience.FirstError(
		resilience.ValidateRequired("variant_name", variant),
		resilience.ValidateID("campaign_id", campaignID),
	); err != nil {
		return err
	}
	if !slices.ContainsFunc(t.variants, func(o Variant) bool { return o.Name == variant }) {
		t.variants = append(t.variants, Variant{Name: variant})
	}
	t.campaigns[variant] = campaignID
	return nil
}

// Campaigns returns the campaign id of every created variant.
func (t *ABTest) Campaigns() map[string]int {
	out := make(map[string]int, len(t.campaigns))
	for k, v := range t.campaigns {
		out[k] = v
	}
	return out
}

// Analyze fetches stats for every created variant, in registration order.
// Variants whose stats cannot be read are left out of the results.
func (t *ABTest) Analyze(ctx context.Context, a *Analyzer) ([]VariantResult, error) {
	var (
		results []VariantResult
		errs    []error
	)
	for _, v := range t.variants {
		id, ok := t.campaigns[v.Name]
		if !ok {
			continue
		}
		stats, err := a.Stats(ctx, id)
		if err != nil {
			t.log.Error("Failed to analyze variant", "variant", v.Name, "campaign_id", id, "error", err)
			errs = append(errs, fmt.Errorf("variant %s: %w", v.Name, err))
			continue
		}
		results = append(results, VariantResult{
			Variant:    v.Name,
			CampaignID: id,
			Stats:      stats,
			Rates:      ComputeRates(stats),
		})
	}
	t.results = results
	return slices.Clone(results), errors.Join(errs...)
}

// SetResults replaces the analyzed results.
func (t *ABTest) SetResults(results []VariantResult) {
	t.results = slices.Clone(results)
}

// Results returns the last analyzed results.
func (t *ABTest) Results() []VariantResult {
	return slices.Clone(t.results)
}

// Winner returns the best result for metric. Open and click rates win high,
// bounce and unsubscribe rates win low. The earliest variant wins ties.
// ok is false when there are no results.
func (t *ABTest) Winner(metric Metric) (VariantResult, bool, error) {
	if len(t.results) == 0 {
		return VariantResult{}, false, nil
	}

	best := -1
	var bestValue float64
	for i, r := range t.results {
		v, err := metric.Value(r.Rates)
		if err != nil {
			return VariantResult{}, false, err
		}
		better := v > bestValue
		if metric.LowerIsBetter() {
			better = v < bestValue
		}
		if best < 0 || better {
			best, bestValue = i, v
		}
	}
	return t.results[best], true, nil
}

// Render writes the comparison table and the winner of each metric. The open
// rate winner is the overall winner.
func (t *ABTest) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintf(tw, "A/B TEST REPORT\t%s\n", t.name)
	_, _ = fmt.Fprintf(tw, "Generated\t%s\n", time.Now().Format("2006-01-02 15:04:05"))
	if len(t.results) == 0 {
		_, _ = fmt.Fprintln(tw, "\nNo results available.")
		return tw.Flush()
	}

	_, _ = fmt.Fprint(tw, "\nVARIANT\tCAMPAIGN\tDELIVERED")
	for _, m := range Metrics {
		_, _ = fmt.Fprintf(tw, "\t%s", m)
	}
	_, _ = fmt.Fprintln(tw)
	for _, r := range t.results {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d", r.Variant, r.CampaignID, r.Stats.TotalDelivered)
		for _, m := range Metrics {
			v, _ := m.Value(r.Rates)
			_, _ = fmt.Fprintf(tw, "\t%.2f%%", v)
		}
		_, _ = fmt.Fprintln(tw)
	}

	_, _ = fmt.Fprintln(tw, "\nWINNERS")
	for _, m := range Metrics {
		if winner, ok, _ := t.Winner(m); ok {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", m, winner.Variant)
		}
	}
	if winner, ok, _ := t.Winner(MetricOpenRate); ok {
		_, _ = fmt.Fprintf(tw, "\nOVERALL\t%s\n", winner.Variant)
	}

	return tw.Flush()
}
