package acumbamail

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/resilience"
)

// GetLists returns every mailing list, ordered by id.
func (c *Client) GetLists(ctx context.Context) ([]domain.MailList, error) {
	var resp map[string]struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Subscribers int    `json:"subscribers"`
	}
	if err := c.call(ctx, "get_lists", "getLists", nil, &resp); err != nil {
		return nil, err
	}

	lists := make([]domain.MailList, 0, len(resp))
	for key, l := range resp {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, resilience.Unclassified("get_lists", fmt.Errorf("invalid list id %q", key))
		}
		lists = append(lists, domain.MailList{
			ID:          id,
			Name:        l.Name,
			Description: l.Description,
			Subscribers: l.Subscribers,
		})
	}
	slices.SortFunc(lists, func(a, b domain.MailList) int { return a.ID - b.ID })
	return lists, nil
}

// CreateList creates a list and returns its id.
func (c *Client) CreateList(ctx context.Context, name, description string) (int, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("description", description)
	if c.senderEmail != "" {
		form.Set("sender_email", c.senderEmail)
	}

	var id idResponse
	if err := c.call(ctx, "create_list", "createList", form, &id); err != nil {
		return 0, err
	}
	return int(id), nil
}

// GetSubscribers returns the members of a list.
func (c *Client) GetSubscribers(ctx context.Context, listID int) ([]domain.Subscriber, error) {
	form := url.Values{}
	form.Set("list_id", strconv.Itoa(listID))

	var subs []domain.Subscriber
	if err := c.call(ctx, "get_subscribers", "getSubscribers", form, &subs); err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].ListID = listID
	}
	return subs, nil
}

// AddSubscriber adds email to a list with optional merge fields and returns
// the subscriber id.
func (c *Client) AddSubscriber(
	ctx context.Context,
	listID int,
	email string,
	fields map[string]string,
) (int, error) {
	form := url.Values{}
	form.Set("list_id", strconv.Itoa(listID))
	form.Set("merge_fields[email]", email)
	for k, v := range fields {
		if k == "email" {
			continue
		}
		form.Set("merge_fields["+k+"]", v)
	}
	form.Set("double_optin", "0")
	form.Set("update_subscriber", "1")

	var id idResponse
	if err := c.call(ctx, "add_subscriber", "addSubscriber", form, &id); err != nil {
		return 0, err
	}
	return int(id), nil
}

// GetCampaigns returns campaigns. complete asks for subject and send date.
func (c *Client) GetCampaigns(ctx context.Context, complete bool) ([]domain.Campaign, error) {
	form := url.Values{}
	if complete {
		form.Set("complete_json", "1")
	}

	var resp []struct {
		ID          idResponse `json:"id"`
		Name        string     `json:"name"`
		Subject     string     `json:"subject"`
		Status      string     `json:"status"`
		SentAt      timestamp  `json:"sent_at"`
		ScheduledAt timestamp  `json:"scheduled_at"`
	}
	if err := c.call(ctx, "get_campaigns", "getCampaigns", form, &resp); err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(resp))
	for _, r := range resp {
		campaigns = append(campaigns, domain.Campaign{
			ID:          int(r.ID),
			Name:        r.Name,
			Subject:     r.Subject,
			Status:      r.Status,
			SentAt:      timeOf(r.SentAt),
			ScheduledAt: timeOf(r.ScheduledAt),
		})
	}
	return campaigns, nil
}

// CreateCampaign creates a campaign and returns its id. Empty sender fields
// fall back to the client defaults.
func (c *Client) CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error) {
	form := url.Values{}
	form.Set("name", p.Name)
	form.Set("subject", p.Subject)
	form.Set("content", p.Content)
	form.Set("from_name", firstNonEmpty(p.FromName, c.senderName))
	form.Set("from_email", firstNonEmpty(p.FromEmail, c.senderEmail))
	for i, id := range p.ListIDs {
		form.Set(fmt.Sprintf("lists[%d]", i), strconv.Itoa(id))
	}
	if p.PreHeader != "" {
		form.Set("pre_header", p.PreHeader)
	}
	if !p.ScheduledAt.IsZero() {
		form.Set("scheduled_at", p.ScheduledAt.Format(scheduleLayout))
	}
	if p.TrackURLs {
		form.Set("tracking_urls", "1")
	}

	var id idResponse
	if err := c.call(ctx, "create_campaign", "createCampaign", form, &id); err != nil {
		return 0, err
	}
	return int(id), nil
}

// SendSingleEmail sends one transactional email and returns its id.
func (c *Client) SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error) {
	form := url.Values{}
	form.Set("from_name", firstNonEmpty(e.FromName, c.senderName))
	form.Set("from_email", firstNonEmpty(e.FromEmail, c.senderEmail))
	form.Set("to_email", e.To)
	form.Set("subject", e.Subject)
	form.Set("body", e.Content)
	if e.Category != "" {
		form.Set("category", e.Category)
	}

	var id idResponse
	if err := c.call(ctx, "send_single_email", "sendOne", form, &id); err != nil {
		return 0, err
	}
	return int(id), nil
}

// GetCampaignTotalInformation returns the delivery counters of a campaign.
func (c *Client) GetCampaignTotalInformation(ctx context.Context, campaignID int) (domain.CampaignStats, error) {
	var stats domain.CampaignStats
	if err := c.call(ctx, "get_campaign_total_information", "getCampaignTotalInformation",
		campaignForm(campaignID), &stats); err != nil {
		return domain.CampaignStats{}, err
	}
	stats.CampaignID = campaignID
	return stats, nil
}

// GetCampaignClicks returns per-URL click counts.
func (c *Client) GetCampaignClicks(ctx context.Context, campaignID int) ([]domain.ClickStat, error) {
	var clicks []domain.ClickStat
	if err := c.call(ctx, "get_campaign_clicks", "getCampaignClicks", campaignForm(campaignID), &clicks); err != nil {
		return nil, err
	}
	return clicks, nil
}

// GetCampaignOpeners returns who opened a campaign and from where.
func (c *Client) GetCampaignOpeners(ctx context.Context, campaignID int) ([]domain.Opener, error) {
	var openers []domain.Opener
	if err := c.call(ctx, "get_campaign_openers", "getCampaignOpeners", campaignForm(campaignID), &openers); err != nil {
		return nil, err
	}
	return openers, nil
}

// GetCampaignSoftBounces returns temporary delivery failures.
func (c *Client) GetCampaignSoftBounces(ctx context.Context, campaignID int) ([]domain.SoftBounce, error) {
	var bounces []domain.SoftBounce
	if err := c.call(ctx, "get_campaign_soft_bounces", "getCampaignSoftBounces",
		campaignForm(campaignID), &bounces); err != nil {
		return nil, err
	}
	return bounces, nil
}

// GetTemplates returns stored templates.
func (c *Client) GetTemplates(ctx context.Context) ([]domain.Template, error) {
	var templates []domain.Template
	if err := c.call(ctx, "get_templates", "getTemplates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func campaignForm(campaignID int) url.Values {
	form := url.Values{}
	form.Set("campaign_id", strconv.Itoa(campaignID))
	return form
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func timeOf(t timestamp) time.Time {
	return time.Time(t)
}
