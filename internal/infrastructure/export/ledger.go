package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
)

const (
	// RequestsSheet holds one row per request
	RequestsSheet = "Requests"

	// HistorySheet holds one row per accepted transition
	HistorySheet = "History"

	timeLayout = "2006-01-02 15:04:05"
)

var (
	requestHeader = []interface{}{
		"ID", "Type", "Status", "Version", "Barangay", "Requester",
		"OR Number", "Approver", "Approved At", "Created At", "Updated At",
	}
	historyHeader = []interface{}{
		"Request ID", "Sequence", "From", "To", "Actor Role", "Actor",
		"OR Number", "Remarks", "Timestamp",
	}
)

// Summary reports what an export wrote
type Summary struct {
	Requests int
	History  int
}

// LedgerExporter writes requests and their transition history to an xlsx workbook
type LedgerExporter struct {
	requests port.RequestRepository
	history  port.HistoryRepository
	logger   *zap.Logger
}

// NewLedgerExporter creates a new ledger exporter
func NewLedgerExporter(requests port.RequestRepository, history port.HistoryRepository, logger *zap.Logger) *LedgerExporter {
	return &LedgerExporter{
		requests: requests,
		history:  history,
		logger:   logger,
	}
}

// Export writes every request matching query to w. Paging fields on query are ignored.
func (e *LedgerExporter) Export(ctx context.Context, query entity.RequestQuery, w io.Writer) (Summary, error) {
	f, summary, err := e.build(ctx, query)
	if err != nil {
		return summary, err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return summary, fmt.Errorf("failed to write workbook: %w", err)
	}
	return summary, nil
}

// ExportFile writes the workbook to path
func (e *LedgerExporter) ExportFile(ctx context.Context, query entity.RequestQuery, path string) (Summary, error) {
	f, summary, err := e.build(ctx, query)
	if err != nil {
		return summary, err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return summary, fmt.Errorf("failed to save workbook: %w", err)
	}

	e.logger.Info("Ledger exported",
		zap.String("path", path),
		zap.Int("requests", summary.Requests),
		zap.Int("history", summary.History))
	return summary, nil
}

func (e *LedgerExporter) build(ctx context.Context, query entity.RequestQuery) (*excelize.File, Summary, error) {
	var summary Summary

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", RequestsSheet); err != nil {
		f.Close()
		return nil, summary, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(HistorySheet); err != nil {
		f.Close()
		return nil, summary, fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, summary, fmt.Errorf("failed to create style: %w", err)
	}
	for sheet, header := range map[string][]interface{}{RequestsSheet: requestHeader, HistorySheet: historyHeader} {
		if err := e.writeRow(f, sheet, 1, header); err != nil {
			f.Close()
			return nil, summary, err
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			f.Close()
			return nil, summary, fmt.Errorf("failed to style header: %w", err)
		}
	}

	query.Limit = entity.MaxListLimit
	query.Offset = 0
	requestRow, historyRow := 2, 2

	for {
		page, err := e.requests.List(ctx, query)
		if err != nil {
			f.Close()
			return nil, summary, fmt.Errorf("failed to list requests: %w", err)
		}

		for _, r := range page {
			if err := e.writeRow(f, RequestsSheet, requestRow, requestCells(r)); err != nil {
				f.Close()
				return nil, summary, err
			}
			requestRow++
			summary.Requests++

			entries, err := e.history.GetByRequestID(ctx, r.ID)
			if err != nil {
				f.Close()
				return nil, summary, fmt.Errorf("failed to load history for %s: %w", r.ID, err)
			}
			for _, h := range entries {
				if err := e.writeRow(f, HistorySheet, historyRow, historyCells(h)); err != nil {
					f.Close()
					return nil, summary, err
				}
				historyRow++
				summary.History++
			}
		}

		if len(page) < query.Limit {
			break
		}
		query.Offset += len(page)
	}

	return f, summary, nil
}

func (e *LedgerExporter) writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("invalid row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func requestCells(r *entity.RequestRecord) []interface{} {
	return []interface{}{
		r.ID,
		string(r.Type),
		string(r.Status),
		r.Version,
		r.BarangayID,
		r.RequesterIdentity,
		r.ORNumberValue(),
		r.ApproverValue(),
		formatTime(r.ApprovedAt),
		r.CreatedAt.UTC().Format(timeLayout),
		r.UpdatedAt.UTC().Format(timeLayout),
	}
}

func historyCells(h entity.HistoryEntry) []interface{} {
	or := ""
	if h.ORNumber != nil {
		or = *h.ORNumber
	}
	return []interface{}{
		h.RequestID,
		h.Sequence,
		string(h.FromStatus),
		string(h.ToStatus),
		string(h.ActorRole),
		h.ActorIdentity,
		or,
		h.Remarks,
		h.Timestamp.UTC().Format(timeLayout),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
