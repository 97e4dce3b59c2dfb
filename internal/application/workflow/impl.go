package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/barangay-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

const (
	// DefaultMaxStorageRetries bounds re-attempts of an operation after ErrStorageFailure
	DefaultMaxStorageRetries = 3
	// DefaultRetryBackoff is the first delay between storage retries; it doubles per attempt
	DefaultRetryBackoff = 50 * time.Millisecond

	resultOK = "OK"

	// unknownTypeLabel tags Apply outcomes that failed before a record was loaded
	unknownTypeLabel domainwf.RequestType = "unknown"
)

// engineImpl implements LifecycleEngine
type engineImpl struct {
	requests   port.RequestRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	authz      port.AuthorizationContext
	sink       port.AuditSink
	table      *domainwf.Table
	dispatcher dispatcher.Dispatcher
	metrics    MetricsRecorder
	logger     Logger

	now          func() time.Time
	newID        func() string
	maxRetries   int
	retryBackoff time.Duration
}

// Option configures the engine
type Option func(*engineImpl)

// WithTable replaces the barangay transition table
func WithTable(table *domainwf.Table) Option {
	return func(e *engineImpl) {
		e.table = table
	}
}

// WithAuditSink sets the sink that receives committed history entries
func WithAuditSink(sink port.AuditSink) Option {
	return func(e *engineImpl) {
		e.sink = sink
	}
}

// WithDispatcher sets the dispatcher used for request.created events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMetrics sets the engine metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) Option {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithIDGenerator overrides request ID generation
func WithIDGenerator(newID func() string) Option {
	return func(e *engineImpl) {
		e.newID = newID
	}
}

// WithRetryPolicy sets how many times a storage failure is retried and the initial backoff
func WithRetryPolicy(maxRetries int, backoff time.Duration) Option {
	return func(e *engineImpl) {
		if maxRetries >= 0 {
			e.maxRetries = maxRetries
		}
		if backoff >= 0 {
			e.retryBackoff = backoff
		}
	}
}

// NewEngine creates a lifecycle engine over the given stores
func NewEngine(
	requests port.RequestRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	authz port.AuthorizationContext,
	opts ...Option,
) LifecycleEngine {
	e := &engineImpl{
		requests:     requests,
		history:      history,
		txManager:    txManager,
		authz:        authz,
		table:        domainwf.DefaultTable(),
		logger:       nopLogger{},
		now:          time.Now,
		newID:        uuid.NewString,
		maxRetries:   DefaultMaxStorageRetries,
		retryBackoff: DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateRequest stores a new request in its initial status
func (e *engineImpl) CreateRequest(ctx context.Context, req NewRequest) (*entity.RequestRecord, error) {
	record, err := e.newRecord(req)
	if err != nil {
		e.observeCreate(req.Type, err)
		return nil, err
	}

	if err := e.requests.Create(ctx, record); err != nil {
		e.observeCreate(req.Type, err)
		e.logger.Error("Failed to create request",
			"request_id", record.ID,
			"type", record.Type,
			"error", err,
		)
		return nil, err
	}
	e.observeCreate(req.Type, nil)

	e.logger.Info("Request created",
		"request_id", record.ID,
		"type", record.Type,
		"barangay_id", record.BarangayID,
		"status", record.Status,
	)

	if e.dispatcher != nil {
		evt := event.NewEvent(event.TypeRequestCreated, record.ID, map[string]interface{}{
			"type":        string(record.Type),
			"status":      string(record.Status),
			"barangay_id": record.BarangayID,
		})
		e.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
	}

	return record.Clone(), nil
}

func (e *engineImpl) newRecord(req NewRequest) (*entity.RequestRecord, error) {
	initial, err := req.Type.InitialStatus()
	if err != nil {
		return nil, err
	}

	barangayID := strings.TrimSpace(req.BarangayID)
	if barangayID == "" {
		return nil, fmt.Errorf("%w: barangay_id is required", domainwf.ErrInvalidRequest)
	}

	requester := strings.TrimSpace(req.RequesterIdentity)
	if requester == "" {
		return nil, fmt.Errorf("%w: requester_identity is required", domainwf.ErrInvalidRequest)
	}

	var payload json.RawMessage
	if len(req.Payload) > 0 {
		if !json.Valid(req.Payload) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", domainwf.ErrInvalidRequest)
		}
		payload = append(json.RawMessage(nil), req.Payload...)
	}

	ts := e.now().UTC()
	return &entity.RequestRecord{
		ID:                e.newID(),
		Type:              req.Type,
		Status:            initial,
		Version:           0,
		BarangayID:        barangayID,
		RequesterIdentity: requester,
		Payload:           payload,
		CreatedAt:         ts,
		UpdatedAt:         ts,
		History:           []entity.HistoryEntry{},
	}, nil
}

// Apply validates the transition against the table and commits it atomically
func (e *engineImpl) Apply(ctx context.Context, req TransitionRequest) (*entity.RequestRecord, error) {
	start := time.Now()

	record, entry, requestType, err := e.apply(ctx, req)
	e.observeApply(requestType, req, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	e.logger.Info("Transition committed",
		"request_id", record.ID,
		"from_status", entry.FromStatus,
		"to_status", entry.ToStatus,
		"actor_role", entry.ActorRole,
		"version", record.Version,
	)

	// Delivery happens after commit and never affects the outcome.
	if e.sink != nil {
		e.sink.Record(context.WithoutCancel(ctx), entry)
	}

	return record, nil
}

// apply also reports the type of the loaded record, empty when loading never succeeded
func (e *engineImpl) apply(ctx context.Context, req TransitionRequest) (*entity.RequestRecord, entity.HistoryEntry, domainwf.RequestType, error) {
	if err := e.authorize(ctx, req.ActorRole, req.ActorIdentity); err != nil {
		return nil, entity.HistoryEntry{}, "", err
	}

	var (
		committed   *entity.RequestRecord
		entry       entity.HistoryEntry
		requestType domainwf.RequestType
	)
	err := e.withRetry(ctx, "apply", func(ctx context.Context) error {
		var err error
		committed, entry, err = e.applyOnce(ctx, req, &requestType)
		return err
	})
	if err != nil {
		return nil, entity.HistoryEntry{}, requestType, err
	}

	return committed, entry, requestType, nil
}

func (e *engineImpl) applyOnce(ctx context.Context, req TransitionRequest, loadedType *domainwf.RequestType) (*entity.RequestRecord, entity.HistoryEntry, error) {
	current, err := e.load(ctx, req.RequestID)
	if err != nil {
		return nil, entity.HistoryEntry{}, err
	}
	*loadedType = current.Type

	if current.Version != req.ExpectedVersion {
		return nil, entity.HistoryEntry{}, fmt.Errorf("%w: request %s is at version %d, expected %d",
			domainwf.ErrStaleVersion, current.ID, current.Version, req.ExpectedVersion)
	}

	row, ok := e.table.Lookup(current.Type, current.Status, req.ActorRole, req.TargetStatus)
	if !ok {
		e.logRejected(current, req)
		return nil, entity.HistoryEntry{}, fmt.Errorf("%w: request %s cannot move to %s",
			domainwf.ErrIllegalTransition, current.ID, req.TargetStatus)
	}

	orNumber := strings.TrimSpace(req.SideData.ORNumber)
	if row.Requirement == domainwf.RequireORNumber && orNumber == "" {
		return nil, entity.HistoryEntry{}, fmt.Errorf("%w: or_number is required to move %s to %s",
			domainwf.ErrMissingRequiredData, current.ID, row.To)
	}

	next, entry := e.nextRecord(current, row, req, orNumber)

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requests.UpdateIfVersion(txCtx, next, current.Version); err != nil {
			return err
		}
		return e.history.Append(txCtx, entry)
	})
	if err != nil {
		return nil, entity.HistoryEntry{}, err
	}

	return next, entry, nil
}

// nextRecord computes the post-transition record and its history entry
func (e *engineImpl) nextRecord(current *entity.RequestRecord, row domainwf.Transition, req TransitionRequest, orNumber string) (*entity.RequestRecord, entity.HistoryEntry) {
	ts := e.now().UTC()

	next := current.Clone()
	next.Status = row.To
	next.Version = current.Version + 1
	next.UpdatedAt = ts

	entry := entity.HistoryEntry{
		RequestID:     current.ID,
		Sequence:      next.Version,
		FromStatus:    current.Status,
		ToStatus:      row.To,
		ActorRole:     req.ActorRole,
		ActorIdentity: req.ActorIdentity,
		Timestamp:     ts,
		Remarks:       strings.TrimSpace(req.SideData.Remarks),
	}

	// OR number is write-once.
	if row.Requirement == domainwf.RequireORNumber && next.ORNumber == nil {
		recordOR := orNumber
		entryOR := orNumber
		next.ORNumber = &recordOR
		entry.ORNumber = &entryOR
	}

	// Approver is write-once.
	if row.SetsApprover() && next.ApproverIdentity == nil {
		approver := req.ActorIdentity
		approvedAt := ts
		next.ApproverIdentity = &approver
		next.ApprovedAt = &approvedAt
	}

	next.History = append(next.History, entry.Clone())
	return next, entry
}

// Get returns the latest committed record with its history
func (e *engineImpl) Get(ctx context.Context, requestID string) (*entity.RequestRecord, error) {
	var record *entity.RequestRecord
	err := e.withRetry(ctx, "get", func(ctx context.Context) error {
		var err error
		record, err = e.load(ctx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListByActorScope returns records visible to the actor
func (e *engineImpl) ListByActorScope(ctx context.Context, role domainwf.Role, identity string, filter entity.RequestFilter) ([]*entity.RequestRecord, error) {
	if err := e.authorize(ctx, role, identity); err != nil {
		return nil, err
	}

	query, err := e.scopeQuery(ctx, role, identity, filter)
	if err != nil {
		return nil, err
	}

	var records []*entity.RequestRecord
	err = e.withRetry(ctx, "list", func(ctx context.Context) error {
		// One transaction so each record and its history come from the same commit.
		return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			listed, err := e.requests.List(txCtx, query)
			if err != nil {
				return err
			}
			for _, r := range listed {
				entries, err := e.history.GetByRequestID(txCtx, r.ID)
				if err != nil {
					return err
				}
				r.History = entries
			}
			records = listed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if records == nil {
		records = []*entity.RequestRecord{}
	}
	return records, nil
}

// scopeQuery narrows the filter to what the actor's role may see
func (e *engineImpl) scopeQuery(ctx context.Context, role domainwf.Role, identity string, filter entity.RequestFilter) (entity.RequestQuery, error) {
	query := entity.RequestQuery{RequestFilter: filter.Normalized()}

	switch {
	case role == domainwf.RoleSuperAdmin:
		return query, nil

	case role.IsStaff():
		var barangayID string
		err := e.withRetry(ctx, "barangay scope", func(ctx context.Context) error {
			var err error
			barangayID, err = e.authz.BarangayScopeOf(ctx, identity)
			if err != nil {
				return e.authzError(err)
			}
			return nil
		})
		if err != nil {
			return query, err
		}
		if barangayID == "" {
			return query, fmt.Errorf("%w: %s has no barangay assignment", domainwf.ErrUnauthorized, identity)
		}
		if query.BarangayID != "" && query.BarangayID != barangayID {
			return query, fmt.Errorf("%w: %s cannot list barangay %s", domainwf.ErrUnauthorized, identity, query.BarangayID)
		}
		query.BarangayID = barangayID
		return query, nil

	case role == domainwf.RoleResident:
		query.RequesterIdentity = identity
		return query, nil
	}

	return query, fmt.Errorf("%w: unknown role %q", domainwf.ErrUnauthorized, role)
}

// AvailableTransitions returns the record and the rows the actor could apply now.
// The record must be visible to the actor under the same scope rules as ListByActorScope.
func (e *engineImpl) AvailableTransitions(ctx context.Context, requestID string, role domainwf.Role, identity string) (*entity.RequestRecord, []domainwf.Transition, error) {
	if err := e.authorize(ctx, role, identity); err != nil {
		return nil, nil, err
	}

	query, err := e.scopeQuery(ctx, role, identity, entity.RequestFilter{})
	if err != nil {
		return nil, nil, err
	}

	record, err := e.Get(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	// Records outside the actor's listing scope are reported as missing.
	if !query.Matches(record) {
		return nil, nil, fmt.Errorf("%w: request %s", domainwf.ErrNotFound, requestID)
	}

	return record, e.table.AllowedTransitions(record.Type, record.Status, role), nil
}

// authorize confirms the actor holds the claimed role
func (e *engineImpl) authorize(ctx context.Context, role domainwf.Role, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: actor identity is required", domainwf.ErrUnauthorized)
	}
	if !role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", domainwf.ErrUnauthorized, role)
	}

	var ok bool
	err := e.withRetry(ctx, "authorize", func(ctx context.Context) error {
		var err error
		ok, err = e.authz.HasRole(ctx, identity, role)
		if err != nil {
			return e.authzError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("Actor role check failed",
			"actor_identity", identity,
			"actor_role", role,
		)
		return fmt.Errorf("%w: %s does not hold role %s", domainwf.ErrUnauthorized, identity, role)
	}
	return nil
}

func (e *engineImpl) authzError(err error) error {
	if errors.Is(err, domainwf.ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: authorization lookup: %v", domainwf.ErrStorageFailure, err)
}

// load reads a record and its history in one transaction, so a concurrent
// commit cannot land between the two reads
func (e *engineImpl) load(ctx context.Context, requestID string) (*entity.RequestRecord, error) {
	var record *entity.RequestRecord
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		r, err := e.requests.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}

		entries, err := e.history.GetByRequestID(txCtx, requestID)
		if err != nil {
			return err
		}
		r.History = entries
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// withRetry re-runs fn while it fails with a retryable storage error
func (e *engineImpl) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	backoff := e.retryBackoff

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !domainwf.IsRetryable(err) || attempt >= e.maxRetries {
			return err
		}

		e.logger.Info("Retrying after storage failure",
			"operation", operation,
			"attempt", attempt+1,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff *= 2
	}
}

// logRejected records why a transition was refused without exposing it to the caller
func (e *engineImpl) logRejected(current *entity.RequestRecord, req TransitionRequest) {
	reason := "target not permitted"
	switch {
	case !e.table.HasAnyTransition(current.Type, current.Status):
		reason = "status is terminal"
	case len(e.table.AllowedTransitions(current.Type, current.Status, req.ActorRole)) == 0:
		reason = "role has no transitions from status"
	}

	e.logger.Info("Transition rejected",
		"request_id", current.ID,
		"type", current.Type,
		"status", current.Status,
		"target_status", req.TargetStatus,
		"actor_role", req.ActorRole,
		"reason", reason,
	)
}

func (e *engineImpl) observeApply(requestType domainwf.RequestType, req TransitionRequest, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	if requestType == "" {
		requestType = unknownTypeLabel
	}
	e.metrics.ObserveApply(requestType, req.TargetStatus, resultLabel(err), elapsed)
}

func (e *engineImpl) observeCreate(requestType domainwf.RequestType, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveCreate(requestType, resultLabel(err))
}

func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	return domainwf.Code(err)
}
