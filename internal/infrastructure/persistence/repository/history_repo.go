package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one history entry. A duplicate sequence means a concurrent writer won.
func (r *HistoryRepository) Append(ctx context.Context, entry entity.HistoryEntry) error {
	query := `
		INSERT INTO request_history (
			request_id, sequence, from_status, to_status,
			actor_role, actor_identity, or_number, remarks, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.RequestID,
		entry.Sequence,
		string(entry.FromStatus),
		string(entry.ToStatus),
		string(entry.ActorRole),
		entry.ActorIdentity,
		nullString(entry.ORNumber),
		entry.Remarks,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append history",
			zap.String("request_id", entry.RequestID),
			zap.Int64("sequence", entry.Sequence),
			zap.Error(err))
		return sqlite.StorageError("append history", err)
	}

	return nil
}

// GetByRequestID retrieves all entries for a request ordered by sequence
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID string) ([]entity.HistoryEntry, error) {
	query := `
		SELECT request_id, sequence, from_status, to_status,
			actor_role, actor_identity, or_number, remarks, occurred_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY sequence ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("request_id", requestID), zap.Error(err))
		return nil, sqlite.Failure("get history", err)
	}
	defer rows.Close()

	entries := []entity.HistoryEntry{}
	for rows.Next() {
		var (
			entry          entity.HistoryEntry
			from, to, role string
			orNumber       sql.NullString
		)
		err := rows.Scan(
			&entry.RequestID,
			&entry.Sequence,
			&from,
			&to,
			&role,
			&entry.ActorIdentity,
			&orNumber,
			&entry.Remarks,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, sqlite.Failure("scan history", err)
		}
		entry.FromStatus = workflow.Status(from)
		entry.ToStatus = workflow.Status(to)
		entry.ActorRole = workflow.Role(role)
		entry.Timestamp = entry.Timestamp.UTC()
		if orNumber.Valid {
			entry.ORNumber = &orNumber.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite.Failure("get history", err)
	}

	return entries, nil
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
