// Package workflow builds automated email sequences on top of the mailing
// client: scheduled campaign series and event-triggered single emails.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/resilience"
)

// CampaignCreator creates campaigns.
type CampaignCreator interface {
	CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error)
}

// Step is one campaign of a series.
type Step struct {
	Name      string `yaml:"name"`
	Subject   string `yaml:"subject"`
	Content   string `yaml:"content"`
	PreHeader string `yaml:"pre_header"`
	// DelayDays counts from series creation. Zero sends immediately.
	DelayDays int `yaml:"delay_days"`
}

// Scheduled is a step whose campaign was created.
type Scheduled struct {
	Step       string    `json:"step"`
	CampaignID int       `json:"campaign_id"`
	SendAt     time.Time `json:"send_at,omitzero"`
}

// Series is an ordered set of campaigns sent to one list, each delayed
// relative to the moment the series is created.
type Series struct {
	name   string
	listID int
	steps  []Step
	now    func() time.Time
	log    *slog.Logger
}

// NewSeries creates an empty series.
func NewSeries(name string, listID int, logger *slog.Logger) *Series {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Series{
		name:   name,
		listID: listID,
		now:    time.Now,
		log:    logger.With("series", name),
	}
}

// Name returns the series name.
func (s *Series) Name() string { return s.name }

// AddStep appends a step.
func (s *Series) AddStep(step Step) error {
	if err := resilience.FirstError(
		resilience.ValidateRequired("step_name", step.Name),
		resilience.ValidateRequired("subject", step.Subject),
		resilience.ValidateRequired("content", step.Content),
	); err != nil {
		return err
	}
	if step.DelayDays < 0 {
		return resilience.Validation("delay_days", "must not be negative")
	}
	s.steps = append(s.steps, step)
	return nil
}

// Steps returns a copy of the steps in order.
func (s *Series) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// Params returns the campaign to create for each step, scheduled relative
// to now.
func (s *Series) Params(now time.Time) []domain.CampaignParams {
	out := make([]domain.CampaignParams, len(s.steps))
	for i, step := range s.steps {
		p := domain.CampaignParams{
			Name:      s.name + " - " + step.Name,
			Subject:   step.Subject,
			Content:   step.Content,
			PreHeader: step.PreHeader,
			ListIDs:   []int{s.listID},
		}
		if step.DelayDays > 0 {
			p.ScheduledAt = now.AddDate(0, 0, step.DelayDays)
		}
		out[i] = p
	}
	return out
}

// Create creates one campaign per step. A failed step does not stop the
// rest; failures are joined into the returned error.
func (s *Series) Create(ctx context.Context, c CampaignCreator) ([]Scheduled, error) {
	if err := resilience.ValidateID("list_id", s.listID); err != nil {
		return nil, err
	}

	var (
		created []Scheduled
		errs    []error
	)
	for i, p := range s.Params(s.now()) {
		step := s.steps[i].Name
		id, err := c.CreateCampaign(ctx, p)
		if err != nil {
			s.log.Warn("Failed to create series campaign", "step", step, "error", err)
			errs = append(errs, fmt.Errorf("step %q: %w", step, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		s.log.Info("Series campaign created", "step", step, "campaign_id", id, "send_at", p.ScheduledAt)
		created = append(created, Scheduled{Step: step, CampaignID: id, SendAt: p.ScheduledAt})
	}
	return created, errors.Join(errs...)
}

// WelcomeSeries is a four-step onboarding sequence over a week.
func WelcomeSeries(listID int, logger *slog.Logger) *Series {
	s := NewSeries("Welcome Series", listID, logger)
	s.steps = []Step{
		{
			Name:      "Welcome Email",
			Subject:   "Welcome to our community!",
			Content:   "<h1>Welcome to Our Community!</h1><p>We're thrilled to have you join us.</p>",
			PreHeader: "Welcome to our community! We're excited to have you on board.",
		},
		{
			Name:      "Getting Started Guide",
			Subject:   "Getting started: Your quick start guide",
			Content:   "<h1>Getting Started Guide</h1><p>Explore the platform and complete your profile.</p>",
			PreHeader: "Your quick start guide to getting the most out of our platform",
			DelayDays: 1,
		},
		{
			Name:      "First Value Email",
			Subject:   "Here's something valuable for you",
			Content:   "<h1>Exclusive Content Just for You</h1><p>This week's report, tips and case study.</p>",
			PreHeader: "Exclusive content and insights just for our community members",
			DelayDays: 3,
		},
		{
			Name:      "Feedback Request",
			Subject:   "How are we doing? We'd love your feedback",
			Content:   "<h1>How Are We Doing?</h1><p>You've been with us for a week now. Tell us what you think.</p>",
			PreHeader: "We'd love to hear your feedback to improve our service",
			DelayDays: 7,
		},
	}
	return s
}

// DripSeries is a lead nurturing sequence for product.
func DripSeries(listID int, product string, logger *slog.Logger) *Series {
	s := NewSeries("Drip Campaign - "+product, listID, logger)
	s.steps = []Step{
		{
			Name:      "Introduction",
			Subject:   "Discover " + product,
			Content:   "<h1>Discover " + product + "</h1><p>See how it can help you achieve your goals.</p>",
			PreHeader: "Discover how " + product + " can help you succeed",
		},
		{
			Name:      "Problem Awareness",
			Subject:   "Are you facing these challenges?",
			Content:   "<h1>Common Challenges We Solve</h1><p>Many customers faced them before " + product + ".</p>",
			PreHeader: "Discover how we solve common challenges in your industry",
			DelayDays: 2,
		},
		{
			Name:      "Solution Presentation",
			Subject:   "How " + product + " solves your problems",
			Content:   "<h1>How " + product + " Solves Your Problems</h1>",
			PreHeader: "See how " + product + " provides real solutions to your challenges",
			DelayDays: 5,
		},
		{
			Name:      "Social Proof",
			Subject:   "What our customers are saying",
			Content:   "<h1>Customer Success Stories</h1><p>Here's what our customers say about " + product + ".</p>",
			PreHeader: "Real stories from customers who transformed their workflow",
			DelayDays: 8,
		},
		{
			Name:      "Call to Action",
			Subject:   "Ready to get started with " + product + "?",
			Content:   "<h1>Ready to Get Started?</h1><p>Start a free trial or schedule a demo.</p>",
			PreHeader: "Take the next step and see " + product + " in action",
			DelayDays: 12,
		},
	}
	return s
}
