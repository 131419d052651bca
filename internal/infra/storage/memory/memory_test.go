package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage"
)

func TestFailedRepo_Lifecycle(t *testing.T) {
	repo := NewFailedRepo(NewMemoryStorage())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Add(ctx, &domain.FailedOperation{ID: "a", CreatedAt: now}))
	require.NoError(t, repo.Add(ctx, &domain.FailedOperation{ID: "b", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Add(ctx, &domain.FailedOperation{ID: "c", CreatedAt: now.Add(2 * time.Second)}))

	require.NoError(t, repo.IncrementRetry(ctx, "a", "still failing"))

	pending, err := repo.GetPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)
	assert.Equal(t, domain.FailedOperationPending, pending[0].Status)

	require.NoError(t, repo.MarkResolved(ctx, "b"))
	require.NoError(t, repo.MarkAbandoned(ctx, "c", "gave up"))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, 1, all[0].RetryCount)
	assert.Equal(t, "still failing", all[0].Error)
	assert.Equal(t, domain.FailedOperationAbandoned, all[1].Status)

	purged, err := repo.Purge(ctx, domain.FailedOperationResolved, domain.FailedOperationAbandoned)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	assert.ErrorIs(t, repo.MarkResolved(ctx, "missing"), storage.ErrNotFound)
}

func TestSnapshotRepo_NewestFirst(t *testing.T) {
	repo := NewSnapshotRepo(NewMemoryStorage())
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, repo.Save(ctx, &domain.CampaignSnapshot{ID: id, CampaignID: 9}))
	}
	require.NoError(t, repo.Save(ctx, &domain.CampaignSnapshot{ID: "other", CampaignID: 4}))

	snaps, err := repo.ListByCampaign(ctx, 9, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "s3", snaps[0].ID)
	assert.Equal(t, "s2", snaps[1].ID)
}
