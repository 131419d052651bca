package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage"
)

type MemoryStorage struct {
	failed    map[string]*domain.FailedOperation
	snapshots map[int][]*domain.CampaignSnapshot
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		failed:    make(map[string]*domain.FailedOperation),
		snapshots: make(map[int][]*domain.CampaignSnapshot),
	}
}

// -----------------------------------------------------------------------------
// Failed Operation Repository
// -----------------------------------------------------------------------------

type FailedRepo struct {
	store *MemoryStorage
}

var _ storage.FailedOperationRepository = (*FailedRepo)(nil)

func NewFailedRepo(store *MemoryStorage) *FailedRepo {
	return &FailedRepo{store: store}
}

func (r *FailedRepo) Add(ctx context.Context, op *domain.FailedOperation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *op
	if cp.Status == "" {
		cp.Status = domain.FailedOperationPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.failed[cp.ID] = &cp
	return nil
}

func (r *FailedRepo) GetPending(ctx context.Context, limit int) ([]*domain.FailedOperation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.FailedOperation
	for _, op := range r.store.failed {
		if op.Status == domain.FailedOperationPending {
			cp := *op
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.FailedOperation) int {
		return cmp.Or(cmp.Compare(a.RetryCount, b.RetryCount), a.CreatedAt.Compare(b.CreatedAt))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FailedRepo) update(id string, fn func(*domain.FailedOperation)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	op, ok := r.store.failed[id]
	if !ok {
		return fmt.Errorf("failed operation %s: %w", id, storage.ErrNotFound)
	}
	fn(op)
	return nil
}

func (r *FailedRepo) IncrementRetry(ctx context.Context, id string, errMsg string) error {
	return r.update(id, func(op *domain.FailedOperation) {
		op.RetryCount++
		op.Error = errMsg
		op.LastAttempt = time.Now()
	})
}

func (r *FailedRepo) MarkResolved(ctx context.Context, id string) error {
	return r.update(id, func(op *domain.FailedOperation) {
		op.Status = domain.FailedOperationResolved
		op.LastAttempt = time.Now()
	})
}

func (r *FailedRepo) MarkAbandoned(ctx context.Context, id string, errMsg string) error {
	return r.update(id, func(op *domain.FailedOperation) {
		op.Status = domain.FailedOperationAbandoned
		op.Error = errMsg
		op.LastAttempt = time.Now()
	})
}

func (r *FailedRepo) GetAll(ctx context.Context) ([]*domain.FailedOperation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.FailedOperation
	for _, op := range r.store.failed {
		if op.Status != domain.FailedOperationResolved {
			cp := *op
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.FailedOperation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *FailedRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, op := range r.store.failed {
		if op.Status == domain.FailedOperationPending {
			n++
		}
	}
	return n, nil
}

func (r *FailedRepo) Purge(ctx context.Context, statuses ...domain.FailedOperationStatus) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for id, op := range r.store.failed {
		if slices.Contains(statuses, op.Status) {
			delete(r.store.failed, id)
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Snapshot Repository
// -----------------------------------------------------------------------------

type SnapshotRepo struct {
	store *MemoryStorage
}

var _ storage.SnapshotRepository = (*SnapshotRepo)(nil)

func NewSnapshotRepo(store *MemoryStorage) *SnapshotRepo {
	return &SnapshotRepo{store: store}
}

func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.CampaignSnapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *snap
	r.store.snapshots[snap.CampaignID] = append(r.store.snapshots[snap.CampaignID], &cp)
	return nil
}

func (r *SnapshotRepo) ListByCampaign(ctx context.Context, campaignID int, limit int) ([]*domain.CampaignSnapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	snaps := r.store.snapshots[campaignID]
	out := make([]*domain.CampaignSnapshot, 0, len(snaps))
	for i := len(snaps) - 1; i >= 0; i-- {
		cp := *snaps[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
