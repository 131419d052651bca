package bulk_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage/memory"
	"github.com/vietddude/acumba/internal/mailing/mailingtest"
	"github.com/vietddude/acumba/internal/resilience"
)

func subscribers(n int) []bulk.Subscriber {
	subs := make([]bulk.Subscriber, n)
	for i := range subs {
		subs[i] = bulk.Subscriber{
			Email:  fmt.Sprintf("user%d@example.com", i+1),
			Fields: map[string]string{"name": fmt.Sprintf("User %d", i+1)},
		}
	}
	return subs
}

func TestRunner_AddSubscribers(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	api.Fail = func(_ string, call int) error {
		switch call {
		case 2:
			return resilience.Validation("email", "invalid")
		case 4:
			return resilience.RateLimited("add_subscriber", "slow down", time.Second)
		}
		return nil
	}
	dlq := memory.NewFailedRepo(memory.NewMemoryStorage())
	r := bulk.NewRunner(api, dlq, bulk.Config{Concurrency: 1}, nil)

	res, err := r.AddSubscribers(context.Background(), 7, subscribers(5))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, domain.OperationAddSubscriber, res.Operation)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.DeadLettered)
	assert.InDelta(t, 60.0, res.SuccessRate(), 1e-9)
	assert.Len(t, res.IDs(), 3)

	failures := res.Failures(0)
	require.Len(t, failures, 2)
	assert.Equal(t, "user2@example.com", failures[0].Key)
	assert.False(t, failures[0].DeadLettered)
	assert.Equal(t, "user4@example.com", failures[1].Key)
	assert.True(t, failures[1].DeadLettered)
	assert.Len(t, res.Failures(1), 1)

	parked, err := dlq.GetPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, res.RunID, parked[0].RunID)
	assert.Equal(t, "rate_limit", parked[0].ErrorKind)

	var payload domain.SubscriberPayload
	require.NoError(t, json.Unmarshal(parked[0].Payload, &payload))
	assert.Equal(t, domain.SubscriberPayload{
		ListID: 7,
		Email:  "user4@example.com",
		Fields: map[string]string{"name": "User 4"},
	}, payload)
}

func TestRunner_SendEmailsDefaultsCategory(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	r := bulk.NewRunner(api, nil, bulk.Config{Concurrency: 3}, nil)

	res, err := r.SendEmails(context.Background(), []domain.SingleEmail{
		{To: "a@example.com", Subject: "s", Content: "c"},
		{To: "b@example.com", Subject: "s", Content: "c", Category: "support"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)

	categories := map[string]string{}
	for _, e := range api.Sent {
		categories[e.To] = e.Category
	}
	assert.Equal(t, bulk.DefaultCategory, categories["a@example.com"])
	assert.Equal(t, "support", categories["b@example.com"])
}

func TestRunner_CreateCampaignsDeadLettersBreakerOpen(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	api.Fail = func(string, int) error {
		return &resilience.BreakerOpenError{Name: "acumbamail", State: resilience.StateOpen}
	}
	dlq := memory.NewFailedRepo(memory.NewMemoryStorage())
	r := bulk.NewRunner(api, dlq, bulk.Config{}, nil)

	res, err := r.CreateCampaigns(context.Background(), []domain.CampaignParams{
		{Name: "Welcome Series - Day 1", Subject: "Welcome", Content: "<h1>Hi</h1>", ListIDs: []int{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeadLettered)

	parked, err := dlq.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "breaker_open", parked[0].ErrorKind)
	assert.Equal(t, domain.OperationCreateCampaign, parked[0].Type)
}

// concurrencyGauge tracks the peak number of overlapping calls.
type concurrencyGauge struct {
	*mailingtest.FakeAPI
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (p *concurrencyGauge) SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error) {
	p.mu.Lock()
	p.inFlight++
	p.peak = max(p.peak, p.inFlight)
	p.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return p.FakeAPI.SendSingleEmail(ctx, e)
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	gauge := &concurrencyGauge{FakeAPI: mailingtest.NewFakeAPI()}
	r := bulk.NewRunner(gauge, nil, bulk.Config{Concurrency: 2}, nil)

	emails := make([]domain.SingleEmail, 8)
	for i := range emails {
		emails[i] = domain.SingleEmail{To: fmt.Sprintf("u%d@example.com", i), Subject: "s", Content: "c"}
	}
	res, err := r.SendEmails(context.Background(), emails)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Succeeded)
	assert.LessOrEqual(t, gauge.peak, 2)
}

func TestRunner_Pace(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	r := bulk.NewRunner(api, nil, bulk.Config{Pace: 20 * time.Millisecond, Concurrency: 4}, nil)

	start := time.Now()
	res, err := r.AddSubscribers(context.Background(), 3, subscribers(4))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Succeeded)
	// Three gaps between four starts.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRunner_CancelledContext(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	r := bulk.NewRunner(api, nil, bulk.Config{Pace: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := r.AddSubscribers(ctx, 3, subscribers(3))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, api.Calls("add_subscriber"))
}

func TestReplayable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
		kind string
	}{
		{"rate limit", resilience.RateLimited("op", "slow", 0), true, "rate_limit"},
		{"api", resilience.APIFailure("op", 502, "bad gateway"), true, "api"},
		{"breaker", &resilience.BreakerOpenError{Name: "x", State: resilience.StateOpen}, true, "breaker_open"},
		{"wrapped api", fmt.Errorf("item: %w", resilience.APIFailure("op", 500, "x")), true, "api"},
		{"validation", resilience.Validation("email", "bad"), false, "validation"},
		{"other", fmt.Errorf("connection reset"), false, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bulk.Replayable(tt.err))
			assert.Equal(t, tt.kind, bulk.ErrorKind(tt.err))
		})
	}
}

func TestResult_Empty(t *testing.T) {
	res := &bulk.Result{}
	assert.Zero(t, res.SuccessRate())
	assert.Empty(t, res.Failures(5))
}
