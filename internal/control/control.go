// Package control wires configuration into a running application.
package control

import (
	"context"
	"fmt"

	"github.com/vietddude/acumba/internal/analytics"
	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/core/worker"
	"github.com/vietddude/acumba/internal/health"
	"github.com/vietddude/acumba/internal/infra/storage"
	"github.com/vietddude/acumba/internal/mailing"
	"github.com/vietddude/acumba/internal/resilience"
	"github.com/vietddude/acumba/internal/workflow"
)

// Client returns the validated, guarded mailing client.
func (a *App) Client() *mailing.SafeClient { return a.client }

// Analyzer returns the campaign analyzer.
func (a *App) Analyzer() *analytics.Analyzer { return a.analyzer }

// Runner returns the bulk runner.
func (a *App) Runner() *bulk.Runner { return a.runner }

// Replayer returns the dead-letter replayer.
func (a *App) Replayer() *worker.Replayer { return a.replayer }

// Triggers returns the triggered email registry.
func (a *App) Triggers() *workflow.Triggers { return a.triggers }

// DeadLetters returns the dead-letter queue.
func (a *App) DeadLetters() storage.FailedOperationRepository { return a.failedRepo }

// Snapshots returns the campaign snapshot store.
func (a *App) Snapshots() storage.SnapshotRepository { return a.snapshots }

// Health returns a detailed health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Status summarizes the resilience state of the client.
type Status struct {
	Breaker resilience.BreakerSnapshot `json:"breaker"`
	Errors  resilience.TallySnapshot   `json:"errors"`
	Pending int                        `json:"pending"`
}

// Status returns the breaker, the error tally and the dead-letter depth.
func (a *App) Status(ctx context.Context) (Status, error) {
	pending, err := a.failedRepo.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return Status{
		Breaker: a.guard.Breaker(),
		Errors:  a.client.ErrorSummary(),
		Pending: pending,
	}, nil
}

// PurgeDeadLetters deletes dead letters in the given states, resolved and
// abandoned ones when none are given.
func (a *App) PurgeDeadLetters(ctx context.Context, statuses ...domain.FailedOperationStatus) (int, error) {
	if len(statuses) == 0 {
		statuses = []domain.FailedOperationStatus{domain.FailedOperationResolved, domain.FailedOperationAbandoned}
	}
	n, err := a.failedRepo.Purge(ctx, statuses...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	a.log.Info("Purged dead letters", "count", n, "statuses", statuses)
	return n, nil
}
