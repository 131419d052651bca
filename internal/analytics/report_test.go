package analytics_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/acumba/internal/analytics"
	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/mailing/mailingtest"
)

type mapCache struct {
	stats  map[int]domain.CampaignStats
	getErr error
	sets   int
}

func (c *mapCache) Get(_ context.Context, id int) (domain.CampaignStats, bool, error) {
	if c.getErr != nil {
		return domain.CampaignStats{}, false, c.getErr
	}
	s, ok := c.stats[id]
	return s, ok, nil
}

func (c *mapCache) Set(_ context.Context, s domain.CampaignStats) error {
	c.sets++
	c.stats[s.CampaignID] = s
	return nil
}

type sliceStore struct {
	saved []*domain.CampaignSnapshot
}

func (s *sliceStore) Save(_ context.Context, snap *domain.CampaignSnapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}

func seededAPI() *mailingtest.FakeAPI {
	api := mailingtest.NewFakeAPI()
	api.Stats[7] = domain.CampaignStats{TotalDelivered: 200, Opened: 60, UniqueClicks: 8, TotalClicks: 12, HardBounces: 2}
	for i := 1; i <= 7; i++ {
		api.Clicks[7] = append(api.Clicks[7], domain.ClickStat{
			URL:    fmt.Sprintf("https://example.com/%d", i),
			Clicks: i % 4,
		})
	}
	api.Openers[7] = []domain.Opener{
		{Email: "a@example.com", Country: "ES", Browser: "Firefox", OS: "Linux"},
		{Email: "b@example.com", Country: "ES", Browser: "Chrome", OS: ""},
		{Email: "c@example.com", Country: "", Browser: "Chrome", OS: "macOS"},
	}
	api.Bounces[7] = []domain.SoftBounce{
		{Email: "d@example.com", Reason: "mailbox full"},
		{Email: "e@example.com", Reason: "mailbox full"},
		{Email: "f@example.com"},
	}
	return api
}

func TestAnalyzer_Report(t *testing.T) {
	store := &sliceStore{}
	a := analytics.NewAnalyzer(seededAPI(), analytics.WithSnapshots(store))

	r, err := a.Report(context.Background(), 7)
	require.NoError(t, err)

	assert.InDelta(t, 30.0, r.Rates.OpenRate, 1e-9)
	assert.InDelta(t, 4.0, r.Rates.ClickRate, 1e-9)
	assert.Equal(t, analytics.GradeExcellent, r.Assessment.Open)

	assert.Equal(t, 7, r.ClickedURLs)
	require.Len(t, r.TopClicks, analytics.DefaultTopN)
	assert.Equal(t, "https://example.com/3", r.TopClicks[0].URL)
	assert.Equal(t, "https://example.com/7", r.TopClicks[1].URL)

	assert.Equal(t, 3, r.Openers)
	assert.Equal(t, []analytics.Count{{Key: "ES", Count: 2}, {Key: "Unknown", Count: 1}}, r.Countries)
	assert.Equal(t, []analytics.Count{{Key: "Chrome", Count: 2}, {Key: "Firefox", Count: 1}}, r.Browsers)
	assert.Equal(t, []analytics.Count{{Key: "Linux", Count: 1}, {Key: "Unknown", Count: 1}, {Key: "macOS", Count: 1}}, r.OperatingSystems)

	assert.Equal(t, []analytics.Count{{Key: "mailbox full", Count: 2}, {Key: "Unknown", Count: 1}}, r.BounceReasons)

	require.Len(t, store.saved, 1)
	assert.Equal(t, 7, store.saved[0].CampaignID)
	assert.NotEmpty(t, store.saved[0].ID)
	assert.InDelta(t, 30.0, store.saved[0].OpenRate, 1e-9)
}

func TestAnalyzer_ReportPropagatesErrors(t *testing.T) {
	api := seededAPI()
	boom := errors.New("boom")
	api.Fail = func(op string, _ int) error {
		if op == "get_campaign_openers" {
			return boom
		}
		return nil
	}

	_, err := analytics.NewAnalyzer(api).Report(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "openers")
}

func TestAnalyzer_StatsUsesCache(t *testing.T) {
	api := seededAPI()
	cache := &mapCache{stats: map[int]domain.CampaignStats{}}
	a := analytics.NewAnalyzer(api, analytics.WithCache(cache))
	ctx := context.Background()

	first, err := a.Stats(ctx, 7)
	require.NoError(t, err)
	second, err := a.Stats(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.Calls("get_campaign_total_information"))
	assert.Equal(t, 1, cache.sets)
}

func TestAnalyzer_StatsBypassesBrokenCache(t *testing.T) {
	api := seededAPI()
	cache := &mapCache{stats: map[int]domain.CampaignStats{}, getErr: errors.New("redis down")}
	a := analytics.NewAnalyzer(api, analytics.WithCache(cache))

	s, err := a.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 200, s.TotalDelivered)
}

func TestTopCounts_Limit(t *testing.T) {
	got := analytics.TopCounts([]string{"a", "b", "b", "c", "c", "c", " "}, 2)
	assert.Equal(t, []analytics.Count{{Key: "c", Count: 3}, {Key: "b", Count: 2}}, got)
}

func TestCampaignReport_Render(t *testing.T) {
	r, err := analytics.NewAnalyzer(seededAPI()).Report(context.Background(), 7)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "CAMPAIGN REPORT")
	assert.Contains(t, out, "30.00%")
	assert.Contains(t, out, "https://example.com/3")
	assert.Contains(t, out, "mailbox full")
}

type sentCampaigns struct {
	*mailingtest.FakeAPI
	campaigns []domain.Campaign
}

func (s *sentCampaigns) GetCampaigns(_ context.Context, complete bool) ([]domain.Campaign, error) {
	if !complete {
		return nil, errors.New("complete listing expected")
	}
	return s.campaigns, nil
}

func TestAnalyzer_ReportDescribesCampaign(t *testing.T) {
	sent := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	src := &sentCampaigns{
		FakeAPI: seededAPI(),
		campaigns: []domain.Campaign{
			{ID: 3, Name: "Winter"},
			{ID: 7, Name: "Spring launch", Subject: "New arrivals", SentAt: sent},
		},
	}

	r, err := analytics.NewAnalyzer(src).Report(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Spring launch", r.Name)
	assert.Equal(t, "New arrivals", r.Subject)
	assert.Equal(t, sent, r.SentAt)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.Contains(t, buf.String(), "Spring launch")
	assert.Contains(t, buf.String(), "New arrivals")
	assert.Contains(t, buf.String(), "2026-03-02 09:30:00")
}

func TestAnalyzer_ReportWithoutCampaignDetails(t *testing.T) {
	api := seededAPI()
	api.Fail = func(op string, _ int) error {
		if op == "get_campaigns" {
			return errors.New("listing down")
		}
		return nil
	}

	r, err := analytics.NewAnalyzer(api).Report(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, r.Name)
	assert.True(t, r.SentAt.IsZero())
	assert.Equal(t, 1, api.Calls("get_campaigns"))

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.NotContains(t, buf.String(), "Subject")
}
