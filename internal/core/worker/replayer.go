package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage"
	"github.com/vietddude/acumba/internal/resilience"
)

const replayLock = "dlq-replay"

// Locker serializes replay passes across processes. The token identifies
// the owner: refresh and release only act on a lock the token still holds.
type Locker interface {
	AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// PassResult summarizes one replay pass.
type PassResult struct {
	Resolved  int
	Retried   int
	Abandoned int
	Skipped   int
}

// Replayer drains the dead-letter queue by replaying parked operations.
type Replayer struct {
	cfg     bulk.Config
	client  bulk.Client
	repo    storage.FailedOperationRepository
	locker  Locker
	log     *slog.Logger
	onDepth func(int)
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithLocker takes a lock around every pass.
func WithLocker(l Locker) ReplayerOption {
	return func(r *Replayer) { r.locker = l }
}

// WithDepthHook reports the pending queue depth after every pass.
func WithDepthHook(fn func(int)) ReplayerOption {
	return func(r *Replayer) { r.onDepth = fn }
}

// NewReplayer creates a new Replayer worker.
func NewReplayer(
	cfg bulk.Config,
	client bulk.Client,
	repo storage.FailedOperationRepository,
	logger *slog.Logger,
	opts ...ReplayerOption,
) *Replayer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxReplays <= 0 {
		cfg.MaxReplays = bulk.DefaultConfig().MaxReplays
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = bulk.DefaultConfig().ReplayBatch
	}
	r := &Replayer{
		cfg:    cfg,
		client: client,
		repo:   repo,
		log:    logger.With("component", "replayer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the replay loop until ctx is done.
func (r *Replayer) Start(ctx context.Context) {
	if r.cfg.ReplayInterval <= 0 {
		return // Replay disabled
	}

	ticker := time.NewTicker(r.cfg.ReplayInterval)
	defer ticker.Stop()

	// Initial pass
	r.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Replayer) pass(ctx context.Context) {
	res, err := r.ReplayOnce(ctx)
	if err != nil {
		r.log.Error("Replay pass failed", "error", err)
		return
	}
	if res != (PassResult{}) {
		r.log.Info("Replay pass finished",
			"resolved", res.Resolved,
			"retried", res.Retried,
			"abandoned", res.Abandoned,
			"skipped", res.Skipped,
		)
	}
}

// ReplayOnce replays one batch of pending operations. The pass stops early
// when the breaker is open, without spending the remaining items' replays.
func (r *Replayer) ReplayOnce(ctx context.Context) (PassResult, error) {
	var res PassResult

	token := uuid.NewString()
	ttl := max(r.cfg.ReplayInterval, time.Minute)
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, replayLock, token, ttl)
		if err != nil {
			return res, fmt.Errorf("failed to acquire replay lock: %w", err)
		}
		if !ok {
			r.log.Debug("Replay pass already running elsewhere")
			return res, nil
		}
		defer func() {
			if err := r.locker.ReleaseLock(context.WithoutCancel(ctx), replayLock, token); err != nil {
				r.log.Warn("Failed to release replay lock", "error", err)
			}
		}()
	}

	ops, err := r.repo.GetPending(ctx, r.cfg.ReplayBatch)
	if err != nil {
		return res, fmt.Errorf("failed to load pending operations: %w", err)
	}

	for i, op := range ops {
		if ctx.Err() != nil {
			res.Skipped += len(ops) - i
			break
		}
		// Every item may run a full retry sequence, so the lock is extended
		// before each one. A lost lock ends the pass.
		if r.locker != nil {
			held, err := r.locker.RefreshLock(ctx, replayLock, token, ttl)
			if err != nil || !held {
				res.Skipped += len(ops) - i
				r.log.Warn("Replay lock lost, ending pass", "remaining", len(ops)-i, "error", err)
				break
			}
		}

		err := r.replay(ctx, op)
		switch {
		case err == nil:
			res.Resolved++
			if err := r.repo.MarkResolved(ctx, op.ID); err != nil {
				r.log.Error("Failed to mark operation resolved", "id", op.ID, "error", err)
			}
		case errors.Is(err, resilience.ErrBreakerOpen):
			res.Skipped += len(ops) - i
			r.log.Warn("Circuit breaker open, postponing replay", "remaining", len(ops)-i)
			r.reportDepth(ctx)
			return res, nil
		case bulk.Replayable(err) && op.RetryCount+1 < r.cfg.MaxReplays:
			res.Retried++
			if err := r.repo.IncrementRetry(ctx, op.ID, err.Error()); err != nil {
				r.log.Error("Failed to record replay attempt", "id", op.ID, "error", err)
			}
		default:
			res.Abandoned++
			r.log.Warn("Abandoning operation", "id", op.ID, "type", op.Type, "retries", op.RetryCount, "error", err)
			if err := r.repo.MarkAbandoned(ctx, op.ID, err.Error()); err != nil {
				r.log.Error("Failed to mark operation abandoned", "id", op.ID, "error", err)
			}
		}
	}

	r.reportDepth(ctx)
	return res, nil
}

func (r *Replayer) reportDepth(ctx context.Context) {
	if r.onDepth == nil {
		return
	}
	n, err := r.repo.Count(ctx)
	if err != nil {
		r.log.Warn("Failed to count pending operations", "error", err)
		return
	}
	r.onDepth(n)
}

func (r *Replayer) replay(ctx context.Context, op *domain.FailedOperation) error {
	switch op.Type {
	case domain.OperationAddSubscriber:
		var p domain.SubscriberPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.client.AddSubscriber(ctx, p.ListID, p.Email, p.Fields)
		return err
	case domain.OperationCreateCampaign:
		var p domain.CampaignParams
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.client.CreateCampaign(ctx, p)
		return err
	case domain.OperationSendEmail:
		var e domain.SingleEmail
		if err := json.Unmarshal(op.Payload, &e); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := r.client.SendSingleEmail(ctx, e)
		return err
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}
