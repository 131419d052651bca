package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/acumba/internal/analytics"
	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/core/config"
	"github.com/vietddude/acumba/internal/core/worker"
	"github.com/vietddude/acumba/internal/health"
	"github.com/vietddude/acumba/internal/infra/acumbamail"
	redisclient "github.com/vietddude/acumba/internal/infra/redis"
	"github.com/vietddude/acumba/internal/infra/storage"
	"github.com/vietddude/acumba/internal/infra/storage/memory"
	"github.com/vietddude/acumba/internal/infra/storage/postgres"
	"github.com/vietddude/acumba/internal/mailing"
	"github.com/vietddude/acumba/internal/metrics"
	"github.com/vietddude/acumba/internal/resilience"
	"github.com/vietddude/acumba/internal/workflow"
)

// GuardName names the guard, breaker and metrics labels of the remote API.
const GuardName = "acumbamail"

// App is the main application struct that wires the mailing client and its
// workers and manages their lifecycle.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	remote   *acumbamail.Client
	guard    *resilience.Guard
	client   *mailing.SafeClient
	analyzer *analytics.Analyzer
	runner   *bulk.Runner
	replayer *worker.Replayer
	triggers *workflow.Triggers

	failedRepo storage.FailedOperationRepository
	snapshots  storage.SnapshotRepository

	healthMon    *health.Monitor
	healthServer *health.Server

	store       *memory.MemoryStorage
	db          *postgres.DB
	redisClient *redisclient.Client

	wg sync.WaitGroup
}

// Option configures an App.
type Option func(*options)

type options struct {
	api mailing.API
}

// WithAPI replaces the Acumbamail HTTP client, e.g. with an in-memory fake.
func WithAPI(api mailing.API) Option {
	return func(o *options) { o.api = api }
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, log: logger}

	// 1. Initialize Storage
	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}

	// 2. Initialize the guarded client
	policy, err := cfg.RetryPolicy()
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.guard, err = resilience.NewGuard(GuardName,
		resilience.WithPolicy(policy),
		resilience.WithBreakerSettings(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown),
		resilience.WithLogger(logger),
		resilience.WithObserver(metrics.Observer{}),
	)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	api := o.api
	if api == nil {
		a.remote = acumbamail.NewClient(cfg.API, logger)
		api = a.remote
	}
	a.client = mailing.NewSafeClient(api, a.guard)

	// 3. Initialize Analytics
	analyzerOpts := []analytics.Option{
		analytics.WithSnapshots(a.snapshots),
		analytics.WithLogger(logger),
	}
	if a.redisClient != nil {
		analyzerOpts = append(analyzerOpts,
			analytics.WithCache(redisclient.NewStatsCache(a.redisClient, cfg.Redis.StatsTTL)))
	}
	a.analyzer = analytics.NewAnalyzer(a.client, analyzerOpts...)

	// 4. Initialize Bulk Runner and Replayer
	a.runner = bulk.NewRunner(a.client, a.failedRepo, cfg.Bulk, logger)

	replayOpts := []worker.ReplayerOption{
		worker.WithDepthHook(func(n int) { metrics.DLQDepth.Set(float64(n)) }),
	}
	if a.redisClient != nil {
		replayOpts = append(replayOpts, worker.WithLocker(a.redisClient))
	}
	a.replayer = worker.NewReplayer(cfg.Bulk, a.client, a.failedRepo, logger, replayOpts...)

	// 5. Initialize Triggers
	a.triggers = workflow.NewTriggers(a.client, logger)
	if cfg.Triggers.File != "" {
		if _, err := a.triggers.LoadFile(cfg.Triggers.File); err != nil {
			a.closeStores()
			return nil, err
		}
	}

	// 6. Initialize Health Monitor
	monitorOpts := []health.MonitorOption{health.WithQueue(a.failedRepo)}
	if a.remote != nil {
		monitorOpts = append(monitorOpts, health.WithAPIStats(a.remote.Monitor))
	}
	if a.db != nil {
		monitorOpts = append(monitorOpts, health.WithDependency("postgres", a.db))
	}
	if a.redisClient != nil {
		monitorOpts = append(monitorOpts, health.WithDependency("redis", a.redisClient))
	}
	a.healthMon = health.NewMonitor(a.guard, monitorOpts...)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	if a.cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
		a.db = db
		a.failedRepo = postgres.NewFailedOperationRepo(db)
		a.snapshots = postgres.NewSnapshotRepo(db)
		a.log.Info("Using PostgreSQL storage")
	} else {
		a.store = memory.NewMemoryStorage()
		a.failedRepo = memory.NewFailedRepo(a.store)
		a.snapshots = memory.NewSnapshotRepo(a.store)
		a.log.Info("Using Memory storage")
	}

	if a.cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, stats cache disabled", "error", err)
			return nil
		}
		a.redisClient = client
		// The queue lives in Redis unless Postgres already holds it
		if a.db == nil {
			a.failedRepo = redisclient.NewFailedOperationRepo(client)
			a.log.Info("Using Redis dead-letter queue")
		}
	}
	return nil
}

// Start starts the health server and background workers. They run until
// ctx is done or Stop is called.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Server.Port > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Info("Starting health server", "port", a.cfg.Server.Port)
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Health server failed", "error", err)
			}
		}()
	}

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Replayer
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("Starting dead-letter replayer", "interval", a.cfg.Bulk.ReplayInterval)
		a.replayer.Start(ctx)
	}()

	return nil
}

// Stop stops the health server, waits for the workers and closes every
// connection. The ctx given to Start must be cancelled for the workers to
// return.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping app...")

	err := a.healthServer.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("workers did not stop: %w", ctx.Err()))
	}

	if a.remote != nil {
		a.remote.Close()
	}
	a.closeStores()
	return err
}

func (a *App) closeStores() {
	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
