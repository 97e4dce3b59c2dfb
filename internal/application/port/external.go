package port

import (
	"context"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

// AuditSink receives every accepted transition.
// Record is fire-and-forget: it must not block the caller and reports nothing back.
type AuditSink interface {
	Record(ctx context.Context, entry entity.HistoryEntry)
}

// AuthorizationContext maps actor identities to roles and barangay scope
type AuthorizationContext interface {
	// HasRole reports whether identity may act as role
	HasRole(ctx context.Context, identity string, role workflow.Role) (bool, error)

	// BarangayScopeOf returns the barangay an identity is bound to
	BarangayScopeOf(ctx context.Context, identity string) (string, error)
}

// AuditSinkFunc adapts a function to AuditSink
type AuditSinkFunc func(ctx context.Context, entry entity.HistoryEntry)

// Record calls f(ctx, entry)
func (f AuditSinkFunc) Record(ctx context.Context, entry entity.HistoryEntry) {
	f(ctx, entry)
}
