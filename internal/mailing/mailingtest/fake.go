// Package mailingtest provides an in-memory mailing.API for tests.
package mailingtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/acumba/internal/core/domain"
)

// FakeAPI implements mailing.API in memory. Fail, when set, is consulted
// before every call and a non-nil return is used as the call's error.
type FakeAPI struct {
	mu sync.Mutex

	Fail func(op string, call int) error

	Lists       []domain.MailList
	Subscribers map[int][]domain.Subscriber
	Campaigns   []domain.CampaignParams
	Sent        []domain.SingleEmail
	Stats       map[int]domain.CampaignStats
	Clicks      map[int][]domain.ClickStat
	Openers     map[int][]domain.Opener
	Bounces     map[int][]domain.SoftBounce
	Templates   []domain.Template

	calls  map[string]int
	nextID int
}

// NewFakeAPI returns an empty fake.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Subscribers: make(map[int][]domain.Subscriber),
		Stats:       make(map[int]domain.CampaignStats),
		Clicks:      make(map[int][]domain.ClickStat),
		Openers:     make(map[int][]domain.Opener),
		Bounces:     make(map[int][]domain.SoftBounce),
		calls:       make(map[string]int),
		nextID:      100,
	}
}

// Calls returns how many times op was invoked.
func (f *FakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter counts the call and returns the injected failure, if any. The caller
// must hold f.mu.
func (f *FakeAPI) enter(op string) error {
	f.calls[op]++
	if f.Fail != nil {
		return f.Fail(op, f.calls[op])
	}
	return nil
}

func (f *FakeAPI) id() int {
	f.nextID++
	return f.nextID
}

func (f *FakeAPI) GetLists(ctx context.Context) ([]domain.MailList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_lists"); err != nil {
		return nil, err
	}
	return append([]domain.MailList(nil), f.Lists...), nil
}

func (f *FakeAPI) CreateList(ctx context.Context, name, description string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_list"); err != nil {
		return 0, err
	}
	id := f.id()
	f.Lists = append(f.Lists, domain.MailList{ID: id, Name: name, Description: description})
	return id, nil
}

func (f *FakeAPI) GetSubscribers(ctx context.Context, listID int) ([]domain.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_subscribers"); err != nil {
		return nil, err
	}
	return append([]domain.Subscriber(nil), f.Subscribers[listID]...), nil
}

func (f *FakeAPI) AddSubscriber(ctx context.Context, listID int, email string, fields map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("add_subscriber"); err != nil {
		return 0, err
	}
	id := f.id()
	f.Subscribers[listID] = append(f.Subscribers[listID], domain.Subscriber{
		ID: id, ListID: listID, Email: email, Fields: fields,
	})
	return id, nil
}

func (f *FakeAPI) GetCampaigns(ctx context.Context, complete bool) ([]domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_campaigns"); err != nil {
		return nil, err
	}
	out := make([]domain.Campaign, 0, len(f.Campaigns))
	for i, p := range f.Campaigns {
		c := domain.Campaign{ID: i + 1, Name: p.Name, ScheduledAt: p.ScheduledAt}
		if complete {
			c.Subject = p.Subject
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeAPI) CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_campaign"); err != nil {
		return 0, err
	}
	f.Campaigns = append(f.Campaigns, p)
	return f.id(), nil
}

func (f *FakeAPI) SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("send_single_email"); err != nil {
		return 0, err
	}
	f.Sent = append(f.Sent, e)
	return f.id(), nil
}

func (f *FakeAPI) GetCampaignTotalInformation(ctx context.Context, campaignID int) (domain.CampaignStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_campaign_total_information"); err != nil {
		return domain.CampaignStats{}, err
	}
	stats, ok := f.Stats[campaignID]
	if !ok {
		return domain.CampaignStats{}, fmt.Errorf("campaign %d not found", campaignID)
	}
	stats.CampaignID = campaignID
	return stats, nil
}

func (f *FakeAPI) GetCampaignClicks(ctx context.Context, campaignID int) ([]domain.ClickStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_campaign_clicks"); err != nil {
		return nil, err
	}
	return f.Clicks[campaignID], nil
}

func (f *FakeAPI) GetCampaignOpeners(ctx context.Context, campaignID int) ([]domain.Opener, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_campaign_openers"); err != nil {
		return nil, err
	}
	return f.Openers[campaignID], nil
}

func (f *FakeAPI) GetCampaignSoftBounces(ctx context.Context, campaignID int) ([]domain.SoftBounce, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_campaign_soft_bounces"); err != nil {
		return nil, err
	}
	return f.Bounces[campaignID], nil
}

func (f *FakeAPI) GetTemplates(ctx context.Context) ([]domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_templates"); err != nil {
		return nil, err
	}
	return append([]domain.Template(nil), f.Templates...), nil
}
