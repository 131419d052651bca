package storage

import (
	"context"
	"errors"

	"github.com/vietddude/acumba/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("not found")
)

// FailedOperationRepository is the dead-letter queue of bulk items.
type FailedOperationRepository interface {
	// Add parks a failed operation as pending
	Add(ctx context.Context, op *domain.FailedOperation) error

	// GetPending returns up to limit pending operations, fewest retries first
	GetPending(ctx context.Context, limit int) ([]*domain.FailedOperation, error)

	// IncrementRetry bumps the retry count and records the latest error
	IncrementRetry(ctx context.Context, id string, errMsg string) error

	// MarkResolved closes an operation that was replayed successfully
	MarkResolved(ctx context.Context, id string) error

	// MarkAbandoned closes an operation that will not be replayed again
	MarkAbandoned(ctx context.Context, id string, errMsg string) error

	// GetAll returns every retained operation, pending and abandoned
	GetAll(ctx context.Context) ([]*domain.FailedOperation, error)

	// Count returns the number of pending operations
	Count(ctx context.Context) (int, error)

	// Purge deletes operations in the given statuses
	Purge(ctx context.Context, statuses ...domain.FailedOperationStatus) (int, error)
}

// SnapshotRepository stores campaign report snapshots.
type SnapshotRepository interface {
	// Save stores a snapshot
	Save(ctx context.Context, snap *domain.CampaignSnapshot) error

	// ListByCampaign returns the latest snapshots of a campaign, newest first
	ListByCampaign(ctx context.Context, campaignID int, limit int) ([]*domain.CampaignSnapshot, error)
}
