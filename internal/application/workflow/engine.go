package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

// LifecycleEngine is the single authority that mutates a request's status
type LifecycleEngine interface {
	// CreateRequest stores a new request in its type's initial status at version 0
	CreateRequest(ctx context.Context, req NewRequest) (*entity.RequestRecord, error)

	// Apply validates and commits one transition
	Apply(ctx context.Context, req TransitionRequest) (*entity.RequestRecord, error)

	// Get returns the latest committed record
	Get(ctx context.Context, requestID string) (*entity.RequestRecord, error)

	// ListByActorScope returns records visible to the actor, newest first
	ListByActorScope(ctx context.Context, role domainwf.Role, identity string, filter entity.RequestFilter) ([]*entity.RequestRecord, error)

	// AvailableTransitions returns the record and the transitions the actor may perform on it now
	AvailableTransitions(ctx context.Context, requestID string, role domainwf.Role, identity string) (*entity.RequestRecord, []domainwf.Transition, error)
}

// NewRequest is the input of the resident-facing submission flow
type NewRequest struct {
	Type              domainwf.RequestType `json:"type"`
	BarangayID        string               `json:"barangay_id"`
	RequesterIdentity string               `json:"requester_identity"`
	Payload           json.RawMessage      `json:"payload,omitempty"`
}

// TransitionRequest asks the engine to move a request to TargetStatus
type TransitionRequest struct {
	RequestID       string          `json:"request_id"`
	ExpectedVersion int64           `json:"expected_version"`
	ActorRole       domainwf.Role   `json:"actor_role"`
	ActorIdentity   string          `json:"actor_identity"`
	TargetStatus    domainwf.Status `json:"target_status"`
	SideData        entity.SideData `json:"side_data"`
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsRecorder observes engine outcomes
type MetricsRecorder interface {
	ObserveApply(requestType domainwf.RequestType, target domainwf.Status, result string, elapsed time.Duration)
	ObserveCreate(requestType domainwf.RequestType, result string)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
