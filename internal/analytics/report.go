package analytics

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/acumba/internal/core/domain"
)

// DefaultTopN is how many entries each breakdown keeps.
const DefaultTopN = 5

const unknown = "Unknown"

// StatsSource reads campaign statistics from the mailing service.
type StatsSource interface {
	GetCampaigns(ctx context.Context, complete bool) ([]domain.Campaign, error)
	GetCampaignTotalInformation(ctx context.Context, campaignID int) (domain.CampaignStats, error)
	GetCampaignClicks(ctx context.Context, campaignID int) ([]domain.ClickStat, error)
	GetCampaignOpeners(ctx context.Context, campaignID int) ([]domain.Opener, error)
	GetCampaignSoftBounces(ctx context.Context, campaignID int) ([]domain.SoftBounce, error)
}

// StatsCache keeps recently fetched stats.
type StatsCache interface {
	Get(ctx context.Context, campaignID int) (domain.CampaignStats, bool, error)
	Set(ctx context.Context, stats domain.CampaignStats) error
}

// SnapshotStore persists report snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap *domain.CampaignSnapshot) error
}

// Count is one bucket of a breakdown.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CampaignReport is the full analysis of one campaign.
type CampaignReport struct {
	CampaignID       int                  `json:"campaign_id"`
	Name             string               `json:"name,omitempty"`
	Subject          string               `json:"subject,omitempty"`
	SentAt           time.Time            `json:"sent_at,omitzero"`
	GeneratedAt      time.Time            `json:"generated_at"`
	Stats            domain.CampaignStats `json:"stats"`
	Rates            Rates                `json:"rates"`
	Assessment       Assessment           `json:"assessment"`
	ClickedURLs      int                  `json:"clicked_urls"`
	TopClicks        []domain.ClickStat   `json:"top_clicks"`
	Openers          int                  `json:"openers"`
	Countries        []Count              `json:"countries"`
	Browsers         []Count              `json:"browsers"`
	OperatingSystems []Count              `json:"operating_systems"`
	SoftBounces      int                  `json:"soft_bounces"`
	BounceReasons    []Count              `json:"bounce_reasons"`
}

// Analyzer builds campaign reports.
type Analyzer struct {
	src   StatsSource
	cache StatsCache
	store SnapshotStore
	log   *slog.Logger
	topN  int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache serves stats from c when present.
func WithCache(c StatsCache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithSnapshots saves a snapshot of every report to s.
func WithSnapshots(s SnapshotStore) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithTopN sets the breakdown size.
func WithTopN(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

// NewAnalyzer creates an Analyzer reading from src.
func NewAnalyzer(src StatsSource, opts ...Option) *Analyzer {
	a := &Analyzer{
		src:  src,
		log:  slog.New(slog.DiscardHandler),
		topN: DefaultTopN,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stats returns the counters of a campaign, using the cache when configured.
// Cache failures are logged and bypassed.
func (a *Analyzer) Stats(ctx context.Context, campaignID int) (domain.CampaignStats, error) {
	if a.cache != nil {
		stats, ok, err := a.cache.Get(ctx, campaignID)
		if err != nil {
			a.log.Warn("Stats cache read failed", "campaign_id", campaignID, "error", err)
		} else if ok {
			return stats, nil
		}
	}

	stats, err := a.src.GetCampaignTotalInformation(ctx, campaignID)
	if err != nil {
		return domain.CampaignStats{}, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, stats); err != nil {
			a.log.Warn("Stats cache write failed", "campaign_id", campaignID, "error", err)
		}
	}
	return stats, nil
}

// Report fetches everything about a campaign and analyzes it.
func (a *Analyzer) Report(ctx context.Context, campaignID int) (*CampaignReport, error) {
	stats, err := a.Stats(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %d stats: %w", campaignID, err)
	}
	clicks, err := a.src.GetCampaignClicks(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %d clicks: %w", campaignID, err)
	}
	openers, err := a.src.GetCampaignOpeners(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %d openers: %w", campaignID, err)
	}
	bounces, err := a.src.GetCampaignSoftBounces(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %d soft bounces: %w", campaignID, err)
	}

	rates := ComputeRates(stats)
	report := &CampaignReport{
		CampaignID:  campaignID,
		GeneratedAt: time.Now(),
		Stats:       stats,
		Rates:       rates,
		Assessment:  Assess(rates),
		ClickedURLs: len(clicks),
		TopClicks:   TopClicks(clicks, a.topN),
		Openers:     len(openers),
		SoftBounces: len(bounces),
	}

	countries := make([]string, len(openers))
	browsers := make([]string, len(openers))
	systems := make([]string, len(openers))
	for i, o := range openers {
		countries[i], browsers[i], systems[i] = o.Country, o.Browser, o.OS
	}
	report.Countries = TopCounts(countries, a.topN)
	report.Browsers = TopCounts(browsers, a.topN)
	report.OperatingSystems = TopCounts(systems, a.topN)

	reasons := make([]string, len(bounces))
	for i, b := range bounces {
		reasons[i] = b.Reason
	}
	report.BounceReasons = TopCounts(reasons, 0)

	a.describe(ctx, report)

	if a.store != nil {
		snap := &domain.CampaignSnapshot{
			ID:              uuid.NewString(),
			CampaignID:      campaignID,
			Stats:           stats,
			OpenRate:        rates.OpenRate,
			ClickRate:       rates.ClickRate,
			BounceRate:      rates.BounceRate,
			UnsubscribeRate: rates.UnsubscribeRate,
			TakenAt:         report.GeneratedAt,
		}
		if err := a.store.Save(ctx, snap); err != nil {
			a.log.Warn("Failed to save campaign snapshot", "campaign_id", campaignID, "error", err)
		}
	}

	return report, nil
}

// describe fills the campaign name, subject and send date. The report is
// still useful without them, so lookup failures are only logged.
func (a *Analyzer) describe(ctx context.Context, r *CampaignReport) {
	campaigns, err := a.src.GetCampaigns(ctx, true)
	if err != nil {
		a.log.Warn("Campaign lookup failed", "campaign_id", r.CampaignID, "error", err)
		return
	}
	i := slices.IndexFunc(campaigns, func(c domain.Campaign) bool { return c.ID == r.CampaignID })
	if i < 0 {
		return
	}
	r.Name, r.Subject, r.SentAt = campaigns[i].Name, campaigns[i].Subject, campaigns[i].SentAt
}

// TopClicks orders clicks by total clicks, most first, and keeps n. n <= 0
// keeps all.
func TopClicks(clicks []domain.ClickStat, n int) []domain.ClickStat {
	sorted := slices.Clone(clicks)
	slices.SortStableFunc(sorted, func(a, b domain.ClickStat) int {
		return cmp.Or(cmp.Compare(b.Clicks, a.Clicks), strings.Compare(a.URL, b.URL))
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// TopCounts counts values, with empty values bucketed as "Unknown", and
// returns the n largest buckets. Ties sort by key. n <= 0 keeps all.
func TopCounts(values []string, n int) []Count {
	counts := make(map[string]int)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			v = unknown
		}
		counts[v]++
	}

	out := make([]Count, 0, len(counts))
	for k, c := range counts {
		out = append(out, Count{Key: k, Count: c})
	}
	slices.SortFunc(out, func(a, b Count) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Key, b.Key))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Render writes a human readable report.
func (r *CampaignReport) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	s := r.Stats
	_, _ = fmt.Fprintf(tw, "CAMPAIGN REPORT\t%d\n", r.CampaignID)
	if r.Name != "" {
		_, _ = fmt.Fprintf(tw, "Name\t%s\n", r.Name)
	}
	if r.Subject != "" {
		_, _ = fmt.Fprintf(tw, "Subject\t%s\n", r.Subject)
	}
	if !r.SentAt.IsZero() {
		_, _ = fmt.Fprintf(tw, "Sent\t%s\n", r.SentAt.Format("2006-01-02 15:04:05"))
	}
	_, _ = fmt.Fprintf(tw, "Generated\t%s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(tw, "Delivered\t%d\t\n", s.TotalDelivered)
	_, _ = fmt.Fprintf(tw, "Opened\t%d\t%.2f%%\n", s.Opened, r.Rates.OpenRate)
	_, _ = fmt.Fprintf(tw, "Unique clicks\t%d\t%.2f%%\n", s.UniqueClicks, r.Rates.ClickRate)
	_, _ = fmt.Fprintf(tw, "Total clicks\t%d\t\n", s.TotalClicks)
	_, _ = fmt.Fprintf(tw, "Hard bounces\t%d\t%.2f%%\n", s.HardBounces, r.Rates.BounceRate)
	_, _ = fmt.Fprintf(tw, "Unsubscribes\t%d\t%.2f%%\n", s.Unsubscribes, r.Rates.UnsubscribeRate)
	_, _ = fmt.Fprintf(tw, "Complaints\t%d\t\n\n", s.Complaints)

	_, _ = fmt.Fprintf(tw, "Open rate\t%s\n", r.Assessment.Open)
	_, _ = fmt.Fprintf(tw, "Click rate\t%s\n", r.Assessment.Click)
	_, _ = fmt.Fprintf(tw, "Bounce rate\t%s\n", r.Assessment.Bounce)
	for _, hint := range r.Assessment.Advice() {
		_, _ = fmt.Fprintf(tw, "\t%s\n", hint)
	}

	if len(r.TopClicks) > 0 {
		_, _ = fmt.Fprintf(tw, "\nURL (%d clicked)\tCLICKS\tUNIQUE\tRATE\n", r.ClickedURLs)
		for _, c := range r.TopClicks {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\n", c.URL, c.Clicks, c.UniqueClicks, c.ClickRate*100)
		}
	}

	if r.Openers > 0 {
		_, _ = fmt.Fprintf(tw, "\nOPENERS\t%d\n", r.Openers)
		renderCounts(tw, "Country", r.Countries)
		renderCounts(tw, "Browser", r.Browsers)
		renderCounts(tw, "OS", r.OperatingSystems)
	}

	if r.SoftBounces > 0 {
		_, _ = fmt.Fprintf(tw, "\nSOFT BOUNCES\t%d\n", r.SoftBounces)
		renderCounts(tw, "Reason", r.BounceReasons)
	}

	return tw.Flush()
}

func renderCounts(w io.Writer, label string, counts []Count) {
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", label, c.Key, c.Count)
	}
}
