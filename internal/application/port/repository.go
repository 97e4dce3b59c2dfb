package port

import (
	"context"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
)

// RequestRepository defines persistence operations for RequestRecord.
// Implementations return workflow.ErrNotFound for missing records and wrap
// transient failures with workflow.ErrStorageFailure.
type RequestRepository interface {
	// Create stores a new record in its initial status
	Create(ctx context.Context, record *entity.RequestRecord) error

	// GetByID returns the record without its history
	GetByID(ctx context.Context, id string) (*entity.RequestRecord, error)

	// UpdateIfVersion writes next only if the stored version still equals expectedVersion.
	// A mismatch returns workflow.ErrStaleVersion. next.Version must be expectedVersion+1.
	UpdateIfVersion(ctx context.Context, next *entity.RequestRecord, expectedVersion int64) error

	// List returns records matching the query, newest first, without history
	List(ctx context.Context, query entity.RequestQuery) ([]*entity.RequestRecord, error)
}

// HistoryRepository defines persistence operations for the append-only transition history
type HistoryRepository interface {
	// Append adds one entry; (request_id, sequence) is unique
	Append(ctx context.Context, entry entity.HistoryEntry) error

	// GetByRequestID returns entries ordered by sequence
	GetByRequestID(ctx context.Context, requestID string) ([]entity.HistoryEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
