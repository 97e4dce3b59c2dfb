package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

func newMockRepo(t *testing.T) (*RequestRepository, *HistoryRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRequestRepository(db, zap.NewNop()), NewHistoryRepository(db, zap.NewNop()), mock
}

func approvedRecord() *entity.RequestRecord {
	or := "OR-1"
	approver := "treasurer-1"
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	return &entity.RequestRecord{
		ID:               "req-1",
		Type:             workflow.TypeBarangayClearance,
		Status:           workflow.StatusApproved,
		Version:          1,
		BarangayID:       "brgy-1",
		ORNumber:         &or,
		ApproverIdentity: &approver,
		ApprovedAt:       &at,
		CreatedAt:        at.Add(-time.Hour),
		UpdatedAt:        at,
	}
}

func TestUpdateIfVersion_Mock(t *testing.T) {
	ctx := context.Background()
	anyArgs := []driver.Value{sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()}

	t.Run("one row updated", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE requests").
			WithArgs(append(anyArgs, "req-1", int64(0))...).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateIfVersion(ctx, approvedRecord(), 0))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version moved on", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE requests").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM requests").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))

		err := repo.UpdateIfVersion(ctx, approvedRecord(), 0)
		assert.ErrorIs(t, err, workflow.ErrStaleVersion)
		assert.Contains(t, err.Error(), "version 3")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record vanished", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE requests").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM requests").
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		err := repo.UpdateIfVersion(ctx, approvedRecord(), 0)
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})

	t.Run("driver failure is retryable", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE requests").WillReturnError(errors.New("disk I/O error"))

		err := repo.UpdateIfVersion(ctx, approvedRecord(), 0)
		assert.ErrorIs(t, err, workflow.ErrStorageFailure)
		assert.True(t, workflow.IsRetryable(err))
	})

	t.Run("busy database is retryable", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE requests").WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

		err := repo.UpdateIfVersion(ctx, approvedRecord(), 0)
		assert.ErrorIs(t, err, workflow.ErrStorageFailure)
	})

	t.Run("write-once trigger reads as a lost race", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE requests").WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint})

		err := repo.UpdateIfVersion(ctx, approvedRecord(), 0)
		assert.ErrorIs(t, err, workflow.ErrStaleVersion)
	})
}

func TestGetByID_Mock(t *testing.T) {
	ctx := context.Background()

	t.Run("missing row", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM requests WHERE id = ?").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})

	t.Run("query failure", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM requests").WillReturnError(errors.New("database is closed"))

		_, err := repo.GetByID(ctx, "req-1")
		assert.ErrorIs(t, err, workflow.ErrStorageFailure)
	})

	t.Run("maps nullable columns", func(t *testing.T) {
		repo, _, mock := newMockRepo(t)
		created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows([]string{
			"id", "type", "status", "version", "barangay_id", "requester_identity", "payload",
			"or_number", "approver_identity", "approved_at", "created_at", "updated_at",
		}).AddRow("req-1", "BLOTTER_REPORT", "PENDING", int64(0), "brgy-1", "resident-1", `{"a":1}`,
			nil, nil, nil, created, created)
		mock.ExpectQuery("SELECT (.+) FROM requests").WithArgs("req-1").WillReturnRows(rows)

		got, err := repo.GetByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, workflow.TypeBlotterReport, got.Type)
		assert.Equal(t, workflow.StatusPending, got.Status)
		assert.JSONEq(t, `{"a":1}`, string(got.Payload))
		assert.Nil(t, got.ORNumber)
		assert.Nil(t, got.ApproverIdentity)
		assert.Nil(t, got.ApprovedAt)
		assert.Equal(t, created, got.CreatedAt)
	})
}

func TestList_BuildsScopedQuery(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM requests WHERE status = \? AND barangay_id = \? AND requester_identity = \? ORDER BY created_at DESC, id ASC LIMIT \? OFFSET \?`).
		WithArgs("PENDING", "brgy-1", "resident-1", int64(entity.DefaultListLimit), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.List(context.Background(), entity.RequestQuery{
		RequestFilter:     entity.RequestFilter{Status: workflow.StatusPending, BarangayID: "brgy-1"},
		RequesterIdentity: "resident-1",
	})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_Mock(t *testing.T) {
	ctx := context.Background()
	entry := entity.HistoryEntry{
		RequestID:     "req-1",
		Sequence:      2,
		FromStatus:    workflow.StatusApproved,
		ToStatus:      workflow.StatusForPickup,
		ActorRole:     workflow.RoleSecretary,
		ActorIdentity: "secretary-1",
		Timestamp:     time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}

	t.Run("inserts", func(t *testing.T) {
		_, history, mock := newMockRepo(t)
		mock.ExpectExec("INSERT INTO request_history").
			WithArgs("req-1", int64(2), "APPROVED", "FOR_PICKUP", "SECRETARY", "secretary-1", nil, "", entry.Timestamp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, history.Append(ctx, entry))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate sequence", func(t *testing.T) {
		_, history, mock := newMockRepo(t)
		mock.ExpectExec("INSERT INTO request_history").WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint})

		assert.ErrorIs(t, history.Append(ctx, entry), workflow.ErrStaleVersion)
	})
}
