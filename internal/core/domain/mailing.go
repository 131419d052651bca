package domain

import "time"

// MailList is a subscriber list.
type MailList struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Subscribers int    `json:"subscribers"`
}

// Subscriber is a list member.
type Subscriber struct {
	ID     int               `json:"id,omitempty"`
	ListID int               `json:"list_id,omitempty"`
	Email  string            `json:"email"`
	Status string            `json:"status,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// CampaignParams describes a campaign to create.
type CampaignParams struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`
	ListIDs   []int  `json:"list_ids"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
	PreHeader string `json:"pre_header,omitempty"`
	// Zero means send immediately.
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
	TrackURLs   bool      `json:"track_urls,omitempty"`
}

// Campaign is a created or sent campaign.
type Campaign struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Status      string    `json:"status,omitempty"`
	SentAt      time.Time `json:"sent_at,omitzero"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
}

// SingleEmail is a transactional message to one recipient.
type SingleEmail struct {
	To        string `json:"to_email"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Template is a stored email template.
type Template struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
}
