package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/sqlite"
)

const requestColumns = `id, type, status, version, barangay_id, requester_identity, payload,
	or_number, approver_identity, approved_at, created_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new request record
func (r *RequestRepository) Create(ctx context.Context, record *entity.RequestRecord) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		record.ID,
		string(record.Type),
		string(record.Status),
		record.Version,
		record.BarangayID,
		record.RequesterIdentity,
		nullJSON(record.Payload),
		nullString(record.ORNumber),
		nullString(record.ApproverIdentity),
		nullTime(record.ApprovedAt),
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", record.ID), zap.Error(err))
		return sqlite.Failure("create request", err)
	}

	return nil
}

// GetByID retrieves a request record without its history
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.RequestRecord, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	record, err := scanRequest(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", workflow.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("request_id", id), zap.Error(err))
		return nil, sqlite.Failure("get request", err)
	}

	return record, nil
}

// UpdateIfVersion writes next when the stored version equals expectedVersion
func (r *RequestRepository) UpdateIfVersion(ctx context.Context, next *entity.RequestRecord, expectedVersion int64) error {
	query := `
		UPDATE requests
		SET status = ?, or_number = ?, approver_identity = ?, approved_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	conn := sqlite.Conn(ctx, r.db)
	result, err := conn.ExecContext(ctx, query,
		string(next.Status),
		nullString(next.ORNumber),
		nullString(next.ApproverIdentity),
		nullTime(next.ApprovedAt),
		next.UpdatedAt.UTC(),
		next.ID,
		expectedVersion,
	)
	if err != nil {
		r.logFailure("Failed to update request", next.ID, err)
		return sqlite.StorageError("update request", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return sqlite.Failure("update request rows affected", err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows: either the record is gone or someone else moved it.
	var current int64
	err = conn.QueryRowContext(ctx, `SELECT version FROM requests WHERE id = ?`, next.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: request %s", workflow.ErrNotFound, next.ID)
	}
	if err != nil {
		return sqlite.Failure("read request version", err)
	}
	return fmt.Errorf("%w: request %s is at version %d, expected %d",
		workflow.ErrStaleVersion, next.ID, current, expectedVersion)
}

// List retrieves request records matching the query, newest first
func (r *RequestRepository) List(ctx context.Context, q entity.RequestQuery) ([]*entity.RequestRecord, error) {
	q.RequestFilter = q.RequestFilter.Normalized()

	var (
		conds []string
		args  []interface{}
	)
	if q.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(q.Type))
	}
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.BarangayID != "" {
		conds = append(conds, "barangay_id = ?")
		args = append(args, q.BarangayID)
	}
	if q.RequesterIdentity != "" {
		conds = append(conds, "requester_identity = ?")
		args = append(args, q.RequesterIdentity)
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logFailure("Failed to list requests", "", err)
		return nil, sqlite.Failure("list requests", err)
	}
	defer rows.Close()

	records := []*entity.RequestRecord{}
	for rows.Next() {
		record, err := scanRequest(rows)
		if err != nil {
			return nil, sqlite.Failure("scan request", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite.Failure("list requests", err)
	}

	return records, nil
}

func (r *RequestRepository) logFailure(msg, id string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	// Lock contention is expected under load and retried by the engine.
	if sqlite.IsBusy(err) {
		r.logger.Warn(msg, fields...)
		return
	}
	r.logger.Error(msg, fields...)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.RequestRecord, error) {
	var (
		record     entity.RequestRecord
		recordType string
		status     string
		payload    sql.NullString
		orNumber   sql.NullString
		approver   sql.NullString
		approvedAt sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&recordType,
		&status,
		&record.Version,
		&record.BarangayID,
		&record.RequesterIdentity,
		&payload,
		&orNumber,
		&approver,
		&approvedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Type = workflow.RequestType(recordType)
	record.Status = workflow.Status(status)
	if payload.Valid && payload.String != "" {
		record.Payload = json.RawMessage(payload.String)
	}
	if orNumber.Valid {
		record.ORNumber = &orNumber.String
	}
	if approver.Valid {
		record.ApproverIdentity = &approver.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		record.ApprovedAt = &t
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()

	return &record, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
