package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage"
)

// operationTTL bounds how long a dead-lettered payload is kept.
const operationTTL = 7 * 24 * time.Hour

// FailedOperationRepo implements storage.FailedOperationRepository using Redis.
// Pending ids live in a sorted set scored by retry count, abandoned ids in a
// plain set, and every payload under its own key.
type FailedOperationRepo struct {
	rdb *redis.Client
}

var _ storage.FailedOperationRepository = (*FailedOperationRepo)(nil)

// NewFailedOperationRepo creates a new Redis-backed dead-letter repository.
func NewFailedOperationRepo(client *Client) *FailedOperationRepo {
	return &FailedOperationRepo{rdb: client.rdb}
}

// Key helpers
func pendingKey() string {
	return keyPrefix + ":dlq:pending"
}

func abandonedKey() string {
	return keyPrefix + ":dlq:abandoned"
}

func operationKey(id string) string {
	return fmt.Sprintf("%s:dlq:op:%s", keyPrefix, id)
}

// Add adds a failed operation to the pending queue.
func (r *FailedOperationRepo) Add(ctx context.Context, op *domain.FailedOperation) error {
	cp := *op
	if cp.Status == "" {
		cp.Status = domain.FailedOperationPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal failed operation: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, operationKey(cp.ID), data, operationTTL)
		pipe.ZAdd(ctx, pendingKey(), redis.Z{Score: pendingScore(&cp), Member: cp.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add failed operation: %w", err)
	}
	return nil
}

// pendingScore orders the queue by retry count, then by age in seconds.
func pendingScore(op *domain.FailedOperation) float64 {
	return float64(op.RetryCount)*1e10 + float64(op.CreatedAt.Unix())
}

func (r *FailedOperationRepo) load(ctx context.Context, id string) (*domain.FailedOperation, error) {
	data, err := r.rdb.Get(ctx, operationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed operation %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed operation: %w", err)
	}

	var op domain.FailedOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed operation: %w", err)
	}
	return &op, nil
}

func (r *FailedOperationRepo) loadAll(
	ctx context.Context,
	ids []string,
	drop func(id string),
) ([]*domain.FailedOperation, error) {
	ops := make([]*domain.FailedOperation, 0, len(ids))
	for _, id := range ids {
		op, err := r.load(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			// Payload expired but id still queued
			drop(id)
			continue
		}
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// GetPending returns up to limit pending operations, fewest retries first.
func (r *FailedOperationRepo) GetPending(ctx context.Context, limit int) ([]*domain.FailedOperation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRange(ctx, pendingKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	return r.loadAll(ctx, ids, r.dropPending(ctx))
}

func (r *FailedOperationRepo) dropPending(ctx context.Context) func(string) {
	return func(id string) { r.rdb.ZRem(ctx, pendingKey(), id) }
}

func (r *FailedOperationRepo) dropAbandoned(ctx context.Context) func(string) {
	return func(id string) { r.rdb.SRem(ctx, abandonedKey(), id) }
}

func (r *FailedOperationRepo) save(ctx context.Context, op *domain.FailedOperation, pipeFn func(redis.Pipeliner)) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal failed operation: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, operationKey(op.ID), data, operationTTL)
		pipeFn(pipe)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save failed operation: %w", err)
	}
	return nil
}

// IncrementRetry increments retry count and updates last attempt.
func (r *FailedOperationRepo) IncrementRetry(ctx context.Context, id string, errMsg string) error {
	op, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	op.RetryCount++
	op.Error = errMsg
	op.LastAttempt = time.Now()

	return r.save(ctx, op, func(pipe redis.Pipeliner) {
		// Higher retry count = lower priority
		pipe.ZAdd(ctx, pendingKey(), redis.Z{Score: pendingScore(op), Member: id})
	})
}

// MarkResolved removes a replayed operation.
func (r *FailedOperationRepo) MarkResolved(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, pendingKey(), id)
		pipe.SRem(ctx, abandonedKey(), id)
		del = pipe.Del(ctx, operationKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to resolve failed operation: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("failed operation %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// MarkAbandoned moves an operation out of the pending queue.
func (r *FailedOperationRepo) MarkAbandoned(ctx context.Context, id string, errMsg string) error {
	op, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	op.Status = domain.FailedOperationAbandoned
	op.Error = errMsg
	op.LastAttempt = time.Now()

	return r.save(ctx, op, func(pipe redis.Pipeliner) {
		pipe.ZRem(ctx, pendingKey(), id)
		pipe.SAdd(ctx, abandonedKey(), id)
	})
}

// GetAll returns pending and abandoned operations, oldest first.
func (r *FailedOperationRepo) GetAll(ctx context.Context) ([]*domain.FailedOperation, error) {
	pending, err := r.rdb.ZRange(ctx, pendingKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	abandoned, err := r.rdb.SMembers(ctx, abandonedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}

	ops, err := r.loadAll(ctx, pending, r.dropPending(ctx))
	if err != nil {
		return nil, err
	}
	more, err := r.loadAll(ctx, abandoned, r.dropAbandoned(ctx))
	if err != nil {
		return nil, err
	}
	ops = append(ops, more...)
	slices.SortFunc(ops, func(a, b *domain.FailedOperation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return ops, nil
}

// Count returns the count of pending operations.
func (r *FailedOperationRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

// Purge deletes operations in the given statuses. Resolved operations are
// already gone.
func (r *FailedOperationRepo) Purge(ctx context.Context, statuses ...domain.FailedOperationStatus) (int, error) {
	var ids []string
	var keys []string
	if slices.Contains(statuses, domain.FailedOperationPending) {
		pending, err := r.rdb.ZRange(ctx, pendingKey(), 0, -1).Result()
		if err != nil {
			return 0, fmt.Errorf("zrange failed: %w", err)
		}
		ids = append(ids, pending...)
		keys = append(keys, pendingKey())
	}
	if slices.Contains(statuses, domain.FailedOperationAbandoned) {
		abandoned, err := r.rdb.SMembers(ctx, abandonedKey()).Result()
		if err != nil {
			return 0, fmt.Errorf("smembers failed: %w", err)
		}
		ids = append(ids, abandoned...)
		keys = append(keys, abandonedKey())
	}
	if len(keys) == 0 {
		return 0, nil
	}

	for _, id := range ids {
		keys = append(keys, operationKey(id))
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to purge failed operations: %w", err)
	}
	return len(ids), nil
}
