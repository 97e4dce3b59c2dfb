package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/memory"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, id, barangay string, created time.Time, approved bool) {
	t.Helper()
	ctx := context.Background()

	record := &entity.RequestRecord{
		ID:                id,
		Type:              workflow.TypeBarangayClearance,
		Status:            workflow.StatusPending,
		BarangayID:        barangay,
		RequesterIdentity: "resident-" + id,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	require.NoError(t, store.Create(ctx, record))
	if !approved {
		return
	}

	or := "OR-" + id
	approver := "treasurer@" + barangay
	at := created.Add(time.Hour)
	next := record.Clone()
	next.Status = workflow.StatusApproved
	next.Version = 1
	next.ORNumber = &or
	next.ApproverIdentity = &approver
	next.ApprovedAt = &at
	next.UpdatedAt = at
	require.NoError(t, store.UpdateIfVersion(ctx, next, 0))
	require.NoError(t, store.Append(ctx, entity.HistoryEntry{
		RequestID:     id,
		Sequence:      1,
		FromStatus:    workflow.StatusPending,
		ToStatus:      workflow.StatusApproved,
		ActorRole:     workflow.RoleTreasurer,
		ActorIdentity: approver,
		Timestamp:     at,
		ORNumber:      &or,
		Remarks:       "paid",
	}))
}

func readRows(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestLedgerExporter_Export(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "req-1", "brgy-1", base, true)
	seed(t, store, "req-2", "brgy-1", base.Add(time.Minute), false)
	seed(t, store, "req-3", "brgy-2", base.Add(2*time.Minute), true)

	exporter := NewLedgerExporter(store, store, zap.NewNop())

	var buf bytes.Buffer
	summary, err := exporter.Export(context.Background(), entity.RequestQuery{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, Summary{Requests: 3, History: 2}, summary)

	requests := readRows(t, buf.Bytes(), RequestsSheet)
	require.Len(t, requests, 4)
	assert.Equal(t, "ID", requests[0][0])
	assert.Equal(t, "req-3", requests[1][0])
	assert.Equal(t, "APPROVED", requests[1][2])
	assert.Equal(t, "OR-req-3", requests[1][6])
	assert.Equal(t, "treasurer@brgy-2", requests[1][7])
	assert.Equal(t, "req-2", requests[2][0])
	assert.Equal(t, "PENDING", requests[2][2])

	history := readRows(t, buf.Bytes(), HistorySheet)
	require.Len(t, history, 3)
	assert.Equal(t, []string{
		"req-3", "1", "PENDING", "APPROVED", "TREASURER", "treasurer@brgy-2",
		"OR-req-3", "paid", "2026-03-01 09:02:00",
	}, history[1])
}

func TestLedgerExporter_FiltersByBarangay(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "req-1", "brgy-1", base, true)
	seed(t, store, "req-2", "brgy-2", base, true)

	exporter := NewLedgerExporter(store, store, zap.NewNop())

	var buf bytes.Buffer
	query := entity.RequestQuery{RequestFilter: entity.RequestFilter{BarangayID: "brgy-2"}}
	summary, err := exporter.Export(context.Background(), query, &buf)
	require.NoError(t, err)
	assert.Equal(t, Summary{Requests: 1, History: 1}, summary)

	rows := readRows(t, buf.Bytes(), RequestsSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, "req-2", rows[1][0])
}

func TestLedgerExporter_PagesThroughAllRequests(t *testing.T) {
	store := memory.NewStore()
	total := entity.MaxListLimit + 5
	for i := 0; i < total; i++ {
		seed(t, store, fmt.Sprintf("req-%03d", i), "brgy-1", base.Add(time.Duration(i)*time.Second), false)
	}

	exporter := NewLedgerExporter(store, store, zap.NewNop())

	var buf bytes.Buffer
	query := entity.RequestQuery{RequestFilter: entity.RequestFilter{Limit: 1, Offset: 10}}
	summary, err := exporter.Export(context.Background(), query, &buf)
	require.NoError(t, err)
	assert.Equal(t, total, summary.Requests)
	assert.Len(t, readRows(t, buf.Bytes(), RequestsSheet), total+1)
}

func TestLedgerExporter_ExportFile(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "req-1", "brgy-1", base, true)

	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	exporter := NewLedgerExporter(store, store, zap.NewNop())

	summary, err := exporter.ExportFile(context.Background(), entity.RequestQuery{}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Requests)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{RequestsSheet, HistorySheet}, f.GetSheetList())
}

type failingRequests struct {
	*memory.Store
}

func (failingRequests) List(context.Context, entity.RequestQuery) ([]*entity.RequestRecord, error) {
	return nil, fmt.Errorf("%w: disk on fire", workflow.ErrStorageFailure)
}

func TestLedgerExporter_ListFailure(t *testing.T) {
	store := memory.NewStore()
	exporter := NewLedgerExporter(failingRequests{store}, store, zap.NewNop())

	var buf bytes.Buffer
	_, err := exporter.Export(context.Background(), entity.RequestQuery{}, &buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrStorageFailure))
	assert.Zero(t, buf.Len())
}
