// Package mailing exposes the Acumbamail operations behind input validation,
// retry and a circuit breaker.
package mailing

import (
	"context"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/resilience"
)

// API is the remote mailing service.
type API interface {
	GetLists(ctx context.Context) ([]domain.MailList, error)
	CreateList(ctx context.Context, name, description string) (int, error)
	GetSubscribers(ctx context.Context, listID int) ([]domain.Subscriber, error)
	AddSubscriber(ctx context.Context, listID int, email string, fields map[string]string) (int, error)
	GetCampaigns(ctx context.Context, complete bool) ([]domain.Campaign, error)
	CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error)
	SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error)
	GetCampaignTotalInformation(ctx context.Context, campaignID int) (domain.CampaignStats, error)
	GetCampaignClicks(ctx context.Context, campaignID int) ([]domain.ClickStat, error)
	GetCampaignOpeners(ctx context.Context, campaignID int) ([]domain.Opener, error)
	GetCampaignSoftBounces(ctx context.Context, campaignID int) ([]domain.SoftBounce, error)
	GetTemplates(ctx context.Context) ([]domain.Template, error)
}

// SafeClient validates input locally, then runs the call through a Guard.
// It implements API and is safe for concurrent use.
type SafeClient struct {
	api   API
	guard *resilience.Guard
}

var _ API = (*SafeClient)(nil)

// NewSafeClient wraps api with guard.
func NewSafeClient(api API, guard *resilience.Guard) *SafeClient {
	return &SafeClient{api: api, guard: guard}
}

// Guard returns the guard shared by every call.
func (c *SafeClient) Guard() *resilience.Guard {
	return c.guard
}

// ErrorSummary returns how many failures of each kind have been seen.
func (c *SafeClient) ErrorSummary() resilience.TallySnapshot {
	return c.guard.Tally()
}

func (c *SafeClient) GetLists(ctx context.Context) ([]domain.MailList, error) {
	return resilience.Call(ctx, c.guard, "get_lists", c.api.GetLists)
}

func (c *SafeClient) CreateList(ctx context.Context, name, description string) (int, error) {
	const op = "create_list"
	if err := resilience.ValidateName("list_name", name, resilience.MaxListNameLength); err != nil {
		return 0, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) (int, error) {
		return c.api.CreateList(ctx, name, description)
	})
}

func (c *SafeClient) GetSubscribers(ctx context.Context, listID int) ([]domain.Subscriber, error) {
	const op = "get_subscribers"
	if err := resilience.ValidateID("list_id", listID); err != nil {
		return nil, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) ([]domain.Subscriber, error) {
		return c.api.GetSubscribers(ctx, listID)
	})
}

func (c *SafeClient) AddSubscriber(
	ctx context.Context,
	listID int,
	email string,
	fields map[string]string,
) (int, error) {
	const op = "add_subscriber"
	if err := resilience.FirstError(
		resilience.ValidateEmail("email", email),
		resilience.ValidateID("list_id", listID),
	); err != nil {
		return 0, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) (int, error) {
		return c.api.AddSubscriber(ctx, listID, email, fields)
	})
}

func (c *SafeClient) GetCampaigns(ctx context.Context, complete bool) ([]domain.Campaign, error) {
	return resilience.Call(ctx, c.guard, "get_campaigns", func(ctx context.Context) ([]domain.Campaign, error) {
		return c.api.GetCampaigns(ctx, complete)
	})
}

func (c *SafeClient) CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error) {
	const op = "create_campaign"
	if err := ValidateCampaign(p); err != nil {
		return 0, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) (int, error) {
		return c.api.CreateCampaign(ctx, p)
	})
}

func (c *SafeClient) SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error) {
	const op = "send_single_email"
	if err := ValidateSingleEmail(e); err != nil {
		return 0, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) (int, error) {
		return c.api.SendSingleEmail(ctx, e)
	})
}

func (c *SafeClient) GetCampaignTotalInformation(ctx context.Context, campaignID int) (domain.CampaignStats, error) {
	const op = "get_campaign_total_information"
	if err := resilience.ValidateID("campaign_id", campaignID); err != nil {
		return domain.CampaignStats{}, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) (domain.CampaignStats, error) {
		return c.api.GetCampaignTotalInformation(ctx, campaignID)
	})
}

func (c *SafeClient) GetCampaignClicks(ctx context.Context, campaignID int) ([]domain.ClickStat, error) {
	const op = "get_campaign_clicks"
	if err := resilience.ValidateID("campaign_id", campaignID); err != nil {
		return nil, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) ([]domain.ClickStat, error) {
		return c.api.GetCampaignClicks(ctx, campaignID)
	})
}

func (c *SafeClient) GetCampaignOpeners(ctx context.Context, campaignID int) ([]domain.Opener, error) {
	const op = "get_campaign_openers"
	if err := resilience.ValidateID("campaign_id", campaignID); err != nil {
		return nil, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) ([]domain.Opener, error) {
		return c.api.GetCampaignOpeners(ctx, campaignID)
	})
}

func (c *SafeClient) GetCampaignSoftBounces(ctx context.Context, campaignID int) ([]domain.SoftBounce, error) {
	const op = "get_campaign_soft_bounces"
	if err := resilience.ValidateID("campaign_id", campaignID); err != nil {
		return nil, c.guard.Reject(op, err)
	}
	return resilience.Call(ctx, c.guard, op, func(ctx context.Context) ([]domain.SoftBounce, error) {
		return c.api.GetCampaignSoftBounces(ctx, campaignID)
	})
}

func (c *SafeClient) GetTemplates(ctx context.Context) ([]domain.Template, error) {
	return resilience.Call(ctx, c.guard, "get_templates", c.api.GetTemplates)
}

// ValidateCampaign checks the fields a campaign cannot be created without.
func ValidateCampaign(p domain.CampaignParams) error {
	return resilience.FirstError(
		resilience.ValidateRequired("campaign_name", p.Name),
		resilience.ValidateRequired("subject", p.Subject),
		resilience.ValidateRequired("content", p.Content),
		resilience.ValidateIDs("list_ids", p.ListIDs),
		validateOptionalEmail("from_email", p.FromEmail),
	)
}

// ValidateSingleEmail checks recipient, subject and content.
func ValidateSingleEmail(e domain.SingleEmail) error {
	return resilience.FirstError(
		resilience.ValidateEmail("to_email", e.To),
		resilience.ValidateRequired("subject", e.Subject),
		resilience.ValidateRequired("content", e.Content),
		validateOptionalEmail("from_email", e.FromEmail),
	)
}

func validateOptionalEmail(field, email string) error {
	if email == "" {
		return nil
	}
	return resilience.ValidateEmail(field, email)
}
