package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage"
)

// FailedOperationRepo implements storage.FailedOperationRepository using PostgreSQL.
type FailedOperationRepo struct {
	db *DB
}

var _ storage.FailedOperationRepository = (*FailedOperationRepo)(nil)

// NewFailedOperationRepo creates a new PostgreSQL dead-letter repository.
func NewFailedOperationRepo(db *DB) *FailedOperationRepo {
	return &FailedOperationRepo{db: db}
}

type failedRow struct {
	ID          string       `db:"id"`
	RunID       string       `db:"run_id"`
	Type        string       `db:"type"`
	Payload     []byte       `db:"payload"`
	ErrorMsg    string       `db:"error_msg"`
	ErrorKind   string       `db:"error_kind"`
	RetryCount  int          `db:"retry_count"`
	Status      string       `db:"status"`
	LastAttempt sql.NullTime `db:"last_attempt"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r failedRow) toDomain() *domain.FailedOperation {
	return &domain.FailedOperation{
		ID:          r.ID,
		RunID:       r.RunID,
		Type:        domain.OperationType(r.Type),
		Payload:     json.RawMessage(r.Payload),
		Error:       r.ErrorMsg,
		ErrorKind:   r.ErrorKind,
		RetryCount:  r.RetryCount,
		Status:      domain.FailedOperationStatus(r.Status),
		LastAttempt: r.LastAttempt.Time,
		CreatedAt:   r.CreatedAt,
	}
}

const failedColumns = `id, run_id, type, payload, error_msg, error_kind, retry_count, status, last_attempt, created_at`

// Add adds a failed operation.
func (r *FailedOperationRepo) Add(ctx context.Context, op *domain.FailedOperation) error {
	query := `
		INSERT INTO failed_operations (id, run_id, type, payload, error_msg, error_kind, retry_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	status := op.Status
	if status == "" {
		status = domain.FailedOperationPending
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		op.ID,
		op.RunID,
		string(op.Type),
		[]byte(op.Payload),
		op.Error,
		op.ErrorKind,
		op.RetryCount,
		string(status),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add failed operation: %w", err)
	}
	return nil
}

// GetPending returns pending operations, fewest retries first.
func (r *FailedOperationRepo) GetPending(ctx context.Context, limit int) ([]*domain.FailedOperation, error) {
	query := `SELECT ` + failedColumns + `
		FROM failed_operations
		WHERE status = 'pending'
		ORDER BY retry_count ASC, created_at ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var rows []failedRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get pending operations: %w", err)
	}
	return toOperations(rows), nil
}

func (r *FailedOperationRepo) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed operation %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// IncrementRetry increments retry count and updates timestamp.
func (r *FailedOperationRepo) IncrementRetry(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE failed_operations
		SET retry_count = retry_count + 1, error_msg = $2, last_attempt = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, query, id, errMsg)
}

// MarkResolved marks a failed operation as resolved.
func (r *FailedOperationRepo) MarkResolved(ctx context.Context, id string) error {
	query := `
		UPDATE failed_operations
		SET status = 'resolved', last_attempt = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, query, id)
}

// MarkAbandoned marks a failed operation as abandoned.
func (r *FailedOperationRepo) MarkAbandoned(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE failed_operations
		SET status = 'abandoned', error_msg = $2, last_attempt = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, query, id, errMsg)
}

// GetAll returns pending and abandoned operations.
func (r *FailedOperationRepo) GetAll(ctx context.Context) ([]*domain.FailedOperation, error) {
	query := `SELECT ` + failedColumns + `
		FROM failed_operations
		WHERE status <> 'resolved'
		ORDER BY created_at ASC
	`
	var rows []failedRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get failed operations: %w", err)
	}
	return toOperations(rows), nil
}

// Count returns the number of pending operations.
func (r *FailedOperationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM failed_operations WHERE status = 'pending'`)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed operations: %w", err)
	}
	return count, nil
}

// Purge deletes operations in the given statuses.
func (r *FailedOperationRepo) Purge(ctx context.Context, statuses ...domain.FailedOperationStatus) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_operations WHERE status = ANY($1)`, pq.Array(names))
	if err != nil {
		return 0, fmt.Errorf("failed to purge failed operations: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func toOperations(rows []failedRow) []*domain.FailedOperation {
	ops := make([]*domain.FailedOperation, 0, len(rows))
	for _, row := range rows {
		ops = append(ops, row.toDomain())
	}
	return ops
}
