package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/core/config"
	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/health"
	"github.com/vietddude/acumba/internal/mailing/mailingtest"
	"github.com/vietddude/acumba/internal/resilience"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(`
server:
  port: -1
retry:
  max_retries: 0
  base_delay: 1ms
  max_delay: 1ms
bulk:
  pace: 1ms
  replay_interval: 10ms
breaker:
  failure_threshold: 2
  cooldown: 1h
`))
	require.NoError(t, err)
	return cfg
}

func TestApp_Lifecycle(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	app, err := NewApp(context.Background(), testConfig(t), nil, WithAPI(api))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.Start(ctx))

	// Wait a bit to let goroutines spin up
	time.Sleep(30 * time.Millisecond)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, app.Stop(stopCtx))
}

func TestApp_BulkFailuresReachReplayer(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	failing := true
	api.Fail = func(string, int) error {
		if failing {
			return resilience.APIFailure("add_subscriber", 503, "unavailable")
		}
		return nil
	}
	app, err := NewApp(context.Background(), testConfig(t), nil, WithAPI(api))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := app.Runner().AddSubscribers(ctx, 5, []bulk.Subscriber{{Email: "a@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeadLettered)

	status, err := app.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, 1, status.Errors.API)

	failing = false
	pass, err := app.Replayer().ReplayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pass.Resolved)
	require.Len(t, api.Subscribers[5], 1)

	n, err := app.PurgeDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApp_BreakerDrivesHealth(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	api.Fail = func(string, int) error { return resilience.APIFailure("get_lists", 500, "boom") }
	app, err := NewApp(context.Background(), testConfig(t), nil, WithAPI(api))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, health.StatusHealthy, app.Health(ctx).SystemStatus)

	for range 2 {
		_, err := app.Client().GetLists(ctx)
		require.Error(t, err)
	}
	_, err = app.Client().GetLists(ctx)
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)

	status, err := app.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, resilience.StateOpen.String(), status.Breaker.State)
	assert.Equal(t, 2, status.Errors.API)
}

func TestApp_ReportSavesSnapshot(t *testing.T) {
	api := mailingtest.NewFakeAPI()
	api.Stats[11] = domain.CampaignStats{TotalDelivered: 100, Opened: 30, UniqueClicks: 4}
	app, err := NewApp(context.Background(), testConfig(t), nil, WithAPI(api))
	require.NoError(t, err)
	ctx := context.Background()

	report, err := app.Analyzer().Report(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "excellent", string(report.Assessment.Open))

	snaps, err := app.Snapshots().ListByCampaign(ctx, 11, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 30.0, snaps[0].OpenRate, 1e-9)
}

func TestApp_TriggersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
triggers:
  invoice:
    subject: "Invoice {{.number}}"
    content: "<p>Amount due: {{.amount}}</p>"
`), 0o600))

	cfg := testConfig(t)
	cfg.Triggers.File = path
	api := mailingtest.NewFakeAPI()
	app, err := NewApp(context.Background(), cfg, nil, WithAPI(api))
	require.NoError(t, err)

	_, err = app.Triggers().Send(context.Background(), "invoice", "billing@example.com",
		map[string]string{"number": "A-7", "amount": "12.00"})
	require.NoError(t, err)
	require.Len(t, api.Sent, 1)
	assert.Equal(t, "Invoice A-7", api.Sent[0].Subject)
	assert.Equal(t, "invoice", api.Sent[0].Category)

	cfg.Triggers.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewApp(context.Background(), cfg, nil, WithAPI(api))
	assert.Error(t, err)
}
