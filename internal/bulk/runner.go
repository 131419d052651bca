// Package bulk runs many mailing operations with bounded concurrency and
// parks transient failures in a dead-letter queue.
package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/metrics"
	"github.com/vietddude/acumba/internal/resilience"
)

// DefaultCategory is used for emails sent without a category.
const DefaultCategory = "bulk_send"

// Client is the part of the mailing API bulk runs use.
type Client interface {
	AddSubscriber(ctx context.Context, listID int, email string, fields map[string]string) (int, error)
	CreateCampaign(ctx context.Context, p domain.CampaignParams) (int, error)
	SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error)
}

// DeadLetters receives items worth replaying later.
type DeadLetters interface {
	Add(ctx context.Context, op *domain.FailedOperation) error
}

// Config tunes a Runner.
type Config struct {
	// Pace is the minimum gap between two item starts.
	Pace time.Duration `yaml:"pace"`
	// Concurrency bounds in-flight items.
	Concurrency int `yaml:"concurrency"`
	// ReplayInterval is how often the dead-letter queue is drained.
	ReplayInterval time.Duration `yaml:"replay_interval"`
	// MaxReplays is how many replays an item gets before it is abandoned.
	MaxReplays int `yaml:"max_replays"`
	// ReplayBatch bounds the items replayed per pass.
	ReplayBatch int `yaml:"replay_batch"`
}

// DefaultConfig paces items 100ms apart, one at a time.
func DefaultConfig() Config {
	return Config{
		Pace:           100 * time.Millisecond,
		Concurrency:    1,
		ReplayInterval: 5 * time.Minute,
		MaxReplays:     5,
		ReplayBatch:    50,
	}
}

// Subscriber is one row of a bulk subscriber import.
type Subscriber struct {
	Email  string            `json:"email"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ItemResult is the outcome of one item.
type ItemResult struct {
	Index        int    `json:"index"`
	Key          string `json:"key"`
	ID           int    `json:"id,omitempty"`
	Err          error  `json:"-"`
	DeadLettered bool   `json:"dead_lettered,omitempty"`
}

// Result summarizes a bulk run.
type Result struct {
	RunID        string               `json:"run_id"`
	Operation    domain.OperationType `json:"operation"`
	Total        int                  `json:"total"`
	Succeeded    int                  `json:"succeeded"`
	Failed       int                  `json:"failed"`
	DeadLettered int                  `json:"dead_lettered"`
	Took         time.Duration        `json:"took"`
	Items        []ItemResult         `json:"items"`
}

// SuccessRate is the percentage of items that succeeded.
func (r *Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Total) * 100
}

// Failures returns up to n failed items in input order. n <= 0 returns all.
func (r *Result) Failures(n int) []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err == nil {
			continue
		}
		out = append(out, it)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// IDs returns the ids of successful items in input order.
func (r *Result) IDs() []int {
	var out []int
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it.ID)
		}
	}
	return out
}

// Runner executes bulk operations.
type Runner struct {
	client Client
	dlq    DeadLetters
	cfg    Config
	log    *slog.Logger
}

// NewRunner creates a Runner. dlq may be nil, in which case nothing is
// dead-lettered.
func NewRunner(client Client, dlq DeadLetters, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		client: client,
		dlq:    dlq,
		cfg:    cfg,
		log:    logger,
	}
}

type item struct {
	key     string
	payload any
	do      func(ctx context.Context) (int, error)
}

// AddSubscribers adds every subscriber to listID.
func (r *Runner) AddSubscribers(ctx context.Context, listID int, subs []Subscriber) (*Result, error) {
	items := make([]item, len(subs))
	for i, s := range subs {
		items[i] = item{
			key:     s.Email,
			payload: domain.SubscriberPayload{ListID: listID, Email: s.Email, Fields: s.Fields},
			do: func(ctx context.Context) (int, error) {
				return r.client.AddSubscriber(ctx, listID, s.Email, s.Fields)
			},
		}
	}
	return r.run(ctx, domain.OperationAddSubscriber, items)
}

// CreateCampaigns creates every campaign.
func (r *Runner) CreateCampaigns(ctx context.Context, campaigns []domain.CampaignParams) (*Result, error) {
	items := make([]item, len(campaigns))
	for i, p := range campaigns {
		items[i] = item{
			key:     p.Name,
			payload: p,
			do: func(ctx context.Context) (int, error) {
				return r.client.CreateCampaign(ctx, p)
			},
		}
	}
	return r.run(ctx, domain.OperationCreateCampaign, items)
}

// SendEmails sends every email, defaulting the category to DefaultCategory.
func (r *Runner) SendEmails(ctx context.Context, emails []domain.SingleEmail) (*Result, error) {
	items := make([]item, len(emails))
	for i, e := range emails {
		if e.Category == "" {
			e.Category = DefaultCategory
		}
		items[i] = item{
			key:     e.To,
			payload: e,
			do: func(ctx context.Context) (int, error) {
				return r.client.SendSingleEmail(ctx, e)
			},
		}
	}
	return r.run(ctx, domain.OperationSendEmail, items)
}

// run processes items, starting at most one per Pace and keeping at most
// Concurrency in flight. A failed item never stops the others; only ctx
// cancellation does, and then the unstarted items are reported as failed.
func (r *Runner) run(ctx context.Context, op domain.OperationType, items []item) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID:     uuid.NewString(),
		Operation: op,
		Total:     len(items),
		Items:     make([]ItemResult, len(items)),
	}
	log := r.log.With("run_id", res.RunID, "operation", op)
	log.Info("Bulk run started", "items", len(items), "concurrency", r.cfg.Concurrency)

	var pace <-chan time.Time
	if r.cfg.Pace > 0 {
		ticker := time.NewTicker(r.cfg.Pace)
		defer ticker.Stop()
		pace = ticker.C
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	var stopErr error
	for i, it := range items {
		res.Items[i] = ItemResult{Index: i, Key: it.key}

		if i > 0 && pace != nil && stopErr == nil {
			select {
			case <-ctx.Done():
				stopErr = ctx.Err()
			case <-pace:
			}
		}
		if stopErr == nil {
			stopErr = ctx.Err()
		}
		if stopErr != nil {
			res.Items[i].Err = stopErr
			continue
		}

		g.Go(func() error {
			id, err := it.do(ctx)
			res.Items[i].ID = id
			res.Items[i].Err = err
			if err != nil {
				res.Items[i].DeadLettered = r.deadLetter(ctx, res.RunID, op, it, err, log)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, it := range res.Items {
		if it.Err == nil {
			res.Succeeded++
			metrics.BulkItemsTotal.WithLabelValues(string(op), "success").Inc()
			log.Debug("Bulk item succeeded", "index", i, "key", it.Key, "id", it.ID)
			continue
		}
		res.Failed++
		metrics.BulkItemsTotal.WithLabelValues(string(op), "failure").Inc()
		if it.DeadLettered {
			res.DeadLettered++
		}
		log.Warn("Bulk item failed", "index", i, "key", it.Key, "error", it.Err)
	}
	res.Took = time.Since(start)

	log.Info("Bulk run finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"dead_lettered", res.DeadLettered,
		"success_rate", fmt.Sprintf("%.1f%%", res.SuccessRate()),
		"took", res.Took,
	)
	return res, stopErr
}

// Replayable reports whether a failure is transient enough to replay later:
// throttling, server errors and an open breaker.
func Replayable(err error) bool {
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return true
	}
	var rerr *resilience.Error
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.Kind == resilience.KindRateLimit || rerr.Kind == resilience.KindAPI
}

// ErrorKind labels a failure for the dead-letter queue.
func ErrorKind(err error) string {
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return "breaker_open"
	}
	return string(resilience.KindOf(err))
}

func (r *Runner) deadLetter(
	ctx context.Context,
	runID string,
	op domain.OperationType,
	it item,
	cause error,
	log *slog.Logger,
) bool {
	if r.dlq == nil || !Replayable(cause) {
		return false
	}
	payload, err := json.Marshal(it.payload)
	if err != nil {
		log.Error("Failed to encode dead-letter payload", "key", it.key, "error", err)
		return false
	}

	now := time.Now()
	failed := &domain.FailedOperation{
		ID:          uuid.NewString(),
		RunID:       runID,
		Type:        op,
		Payload:     payload,
		Error:       cause.Error(),
		ErrorKind:   ErrorKind(cause),
		Status:      domain.FailedOperationPending,
		LastAttempt: now,
		CreatedAt:   now,
	}
	// The run context may be cancelled already; parking must still happen
	if err := r.dlq.Add(context.WithoutCancel(ctx), failed); err != nil {
		log.Error("Failed to dead-letter item", "key", it.key, "error", err)
		return false
	}
	log.Info("Item dead-lettered", "key", it.key, "id", failed.ID, "kind", failed.ErrorKind)
	return true
}
