package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/acumba/internal/core/domain"
	redisclient "github.com/vietddude/acumba/internal/infra/redis"
	"github.com/vietddude/acumba/internal/infra/storage"
	"github.com/vietddude/acumba/internal/infra/storage/postgres"
)

// setupTestDB recreates dbName on the server of E2E_POSTGRES_URL and returns
// a URL pointing at it.
func setupTestDB(t *testing.T, dbName string) string {
	rootURL := os.Getenv("E2E_POSTGRES_URL")
	if rootURL == "" {
		t.Skip("Skipping live Postgres test. Set E2E_POSTGRES_URL to run.")
	}

	// Root connection to create test DB
	rootDB, err := sql.Open("postgres", rootURL)
	if err != nil {
		t.Fatalf("Failed to connect to root postgres: %v", err)
	}
	defer rootDB.Close()

	// Drop and recreate test DB
	_, _ = rootDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
	if _, err = rootDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}
	t.Cleanup(func() {
		db, err := sql.Open("postgres", rootURL)
		if err == nil {
			_, _ = db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
			db.Close()
		}
	})

	i := strings.LastIndex(rootURL, "/")
	j := strings.Index(rootURL[i:], "?")
	if j < 0 {
		return rootURL[:i+1] + dbName
	}
	return rootURL[:i+1] + dbName + rootURL[i+j:]
}

func parked(id string, retries int, created time.Time) *domain.FailedOperation {
	payload, _ := json.Marshal(domain.SubscriberPayload{ListID: 1, Email: id + "@example.com"})
	return &domain.FailedOperation{
		ID:          id,
		RunID:       "run-1",
		Type:        domain.OperationAddSubscriber,
		Payload:     payload,
		Error:       "503 unavailable",
		ErrorKind:   "api",
		RetryCount:  retries,
		Status:      domain.FailedOperationPending,
		LastAttempt: created,
		CreatedAt:   created,
	}
}

// exerciseDeadLetters runs the same scenario against any queue backend.
func exerciseDeadLetters(t *testing.T, repo storage.FailedOperationRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	require.NoError(t, repo.Add(ctx, parked(a, 2, now)))
	require.NoError(t, repo.Add(ctx, parked(b, 0, now.Add(time.Second))))
	require.NoError(t, repo.Add(ctx, parked(c, 0, now)))

	pending, err := repo.GetPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, c, pending[0].ID)
	assert.Equal(t, b, pending[1].ID)
	assert.JSONEq(t, string(parked(c, 0, now).Payload), string(pending[0].Payload))

	require.NoError(t, repo.IncrementRetry(ctx, c, "still failing"))
	require.NoError(t, repo.MarkResolved(ctx, b))
	require.NoError(t, repo.MarkAbandoned(ctx, a, "gave up"))
	assert.ErrorIs(t, repo.MarkResolved(ctx, "missing"), storage.ErrNotFound)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	byID := map[string]*domain.FailedOperation{}
	for _, op := range all {
		byID[op.ID] = op
	}
	assert.Equal(t, 1, byID[c].RetryCount)
	assert.Equal(t, "still failing", byID[c].Error)
	assert.Equal(t, domain.FailedOperationAbandoned, byID[a].Status)

	purged, err := repo.Purge(ctx, domain.FailedOperationAbandoned)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestPostgres_Live(t *testing.T) {
	url := setupTestDB(t, "acumba_test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.NewDB(ctx, postgres.Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))
	// Migrations are idempotent
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Health(ctx))

	t.Run("dead letters", func(t *testing.T) {
		exerciseDeadLetters(t, postgres.NewFailedOperationRepo(db))
	})

	t.Run("snapshots", func(t *testing.T) {
		repo := postgres.NewSnapshotRepo(db)
		for i := range 3 {
			require.NoError(t, repo.Save(ctx, &domain.CampaignSnapshot{
				ID:         uuid.NewString(),
				CampaignID: 42,
				Stats:      domain.CampaignStats{CampaignID: 42, TotalDelivered: 100, Opened: 10 * (i + 1)},
				OpenRate:   float64(10 * (i + 1)),
				TakenAt:    time.Now().Add(time.Duration(i) * time.Minute),
			}))
		}
		snaps, err := repo.ListByCampaign(ctx, 42, 2)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.InDelta(t, 30.0, snaps[0].OpenRate, 1e-9)
		assert.Equal(t, 30, snaps[0].Stats.Opened)
	})
}

func TestRedis_Live(t *testing.T) {
	url := os.Getenv("E2E_REDIS_URL")
	if url == "" {
		t.Skip("Skipping live Redis test. Set E2E_REDIS_URL to run.")
	}
	ctx := context.Background()

	client, err := redisclient.NewClient(redisclient.Config{URL: url})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Health(ctx))

	t.Run("dead letters", func(t *testing.T) {
		repo := redisclient.NewFailedOperationRepo(client)
		_, err := repo.Purge(ctx,
			domain.FailedOperationPending, domain.FailedOperationResolved, domain.FailedOperationAbandoned)
		require.NoError(t, err)
		exerciseDeadLetters(t, repo)
	})

	t.Run("stats cache", func(t *testing.T) {
		cache := redisclient.NewStatsCache(client, time.Minute)
		require.NoError(t, cache.Invalidate(ctx, 7))

		_, ok, err := cache.Get(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok)

		want := domain.CampaignStats{CampaignID: 7, TotalDelivered: 50, Opened: 5}
		require.NoError(t, cache.Set(ctx, want))
		got, ok, err := cache.Get(ctx, 7)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("lock", func(t *testing.T) {
		name := "e2e-" + uuid.NewString()
		owner, other := uuid.NewString(), uuid.NewString()
		ok, err := client.AcquireLock(ctx, name, owner, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.AcquireLock(ctx, name, other, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = client.RefreshLock(ctx, name, owner, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = client.RefreshLock(ctx, name, other, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		// Another token cannot release the lock.
		require.NoError(t, client.ReleaseLock(ctx, name, other))
		ok, err = client.AcquireLock(ctx, name, other, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, client.ReleaseLock(ctx, name, owner))
		ok, err = client.AcquireLock(ctx, name, other, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, client.ReleaseLock(ctx, name, other))
	})
}
