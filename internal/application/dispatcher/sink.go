package dispatcher

import (
	"context"

	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/event"
)

// auditSink turns committed history entries into request.transitioned events
type auditSink struct {
	d Dispatcher
}

// NewAuditSink returns an AuditSink that dispatches each entry synchronously;
// handlers must not block. Concurrent Applies may deliver entries of one request
// out of commit order, so handlers order by Sequence.
func NewAuditSink(d Dispatcher) port.AuditSink {
	return &auditSink{d: d}
}

func (s *auditSink) Record(ctx context.Context, entry entity.HistoryEntry) {
	// Handler failures are logged by the dispatcher and never reach the engine.
	_ = s.d.Dispatch(ctx, event.NewTransitionEvent(entry))
}
