package domain

import "time"

// CampaignStats holds the delivery counters of one campaign.
type CampaignStats struct {
	CampaignID     int `json:"campaign_id" db:"campaign_id"`
	TotalDelivered int `json:"total_delivered" db:"total_delivered"`
	Opened         int `json:"opened" db:"opened"`
	UniqueClicks   int `json:"unique_clicks" db:"unique_clicks"`
	TotalClicks    int `json:"total_clicks" db:"total_clicks"`
	HardBounces    int `json:"hard_bounces" db:"hard_bounces"`
	SoftBounces    int `json:"soft_bounces" db:"soft_bounces"`
	Unsubscribes   int `json:"unsubscribes" db:"unsubscribes"`
	Complaints     int `json:"complaints" db:"complaints"`
}

// ClickStat is the click count of one URL in a campaign.
type ClickStat struct {
	URL          string  `json:"url"`
	Clicks       int     `json:"clicks"`
	UniqueClicks int     `json:"unique_clicks"`
	ClickRate    float64 `json:"click_rate"`
}

// Opener is one recipient who opened a campaign.
type Opener struct {
	Email    string `json:"email"`
	Country  string `json:"country"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	OpenedAt string `json:"opened_at,omitempty"`
}

// SoftBounce is one temporary delivery failure.
type SoftBounce struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// CampaignSnapshot is a persisted copy of campaign stats with derived rates.
type CampaignSnapshot struct {
	ID              string        `json:"id" db:"id"`
	CampaignID      int           `json:"campaign_id" db:"campaign_id"`
	Stats           CampaignStats `json:"stats"`
	OpenRate        float64       `json:"open_rate" db:"open_rate"`
	ClickRate       float64       `json:"click_rate" db:"click_rate"`
	BounceRate      float64       `json:"bounce_rate" db:"bounce_rate"`
	UnsubscribeRate float64       `json:"unsubscribe_rate" db:"unsubscribe_rate"`
	TakenAt         time.Time     `json:"taken_at" db:"taken_at"`
}
