package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/authz"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/persistence/memory"
)

const staffDirectory = `
resident_self_service: true
members:
  - identity: treasurer-1
    barangay: brgy-1
    roles: [TREASURER]
  - identity: secretary-1
    barangay: brgy-1
    roles: [SECRETARY]
  - identity: secretary-2
    barangay: brgy-2
    roles: [SECRETARY]
  - identity: admin
    roles: [SUPER_ADMIN]
`

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()

	dir, err := authz.ParseDirectory([]byte(staffDirectory))
	require.NoError(t, err)
	authorizer, err := authz.NewAuthorizer(dir, zap.NewNop())
	require.NoError(t, err)

	store := memory.NewStore()
	engine := workflow.NewEngine(store, store, store, authorizer)
	return NewServer(DefaultServerConfig(), engine, nopLogger{}, opts...)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func do(t *testing.T, s *Server, method, path, identity string, role domainwf.Role, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set(HeaderActorIdentity, identity)
	}
	if role != "" {
		req.Header.Set(HeaderActorRole, string(role))
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func createClearance(t *testing.T, s *Server) entity.RequestRecord {
	t.Helper()
	w, env := do(t, s, http.MethodPost, "/api/requests", "juan", domainwf.RoleResident, map[string]interface{}{
		"type":        "BARANGAY_CLEARANCE",
		"barangay_id": "brgy-1",
		"payload":     map[string]string{"purpose": "employment"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var record entity.RequestRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	return record
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w, env := do(t, s, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestCreateRequest(t *testing.T) {
	s := newTestServer(t)

	record := createClearance(t, s)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, domainwf.StatusPending, record.Status)
	assert.Equal(t, int64(0), record.Version)
	assert.Equal(t, "juan", record.RequesterIdentity)
	assert.JSONEq(t, `{"purpose":"employment"}`, string(record.Payload))

	tests := []struct {
		name     string
		identity string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"missing actor", "", map[string]string{"type": "BARANGAY_CLEARANCE", "barangay_id": "brgy-1"}, http.StatusUnauthorized, domainwf.CodeUnauthorized},
		{"missing barangay", "juan", map[string]string{"type": "BARANGAY_CLEARANCE"}, http.StatusBadRequest, codeBadRequest},
		{"unknown type", "juan", map[string]string{"type": "CEDULA", "barangay_id": "brgy-1"}, http.StatusBadRequest, domainwf.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, s, http.MethodPost, "/api/requests", tt.identity, domainwf.RoleResident, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantErr, env.Code)
		})
	}
}

func TestApplyTransition(t *testing.T) {
	s := newTestServer(t)
	record := createClearance(t, s)
	path := "/api/requests/" + record.ID + "/transitions"

	transition := func(version int64, target domainwf.Status, or string) map[string]interface{} {
		return map[string]interface{}{
			"expected_version": version,
			"target_status":    target,
			"or_number":        or,
		}
	}

	t.Run("approval without OR number", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, path, "treasurer-1", domainwf.RoleTreasurer, transition(0, domainwf.StatusApproved, "  "))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, domainwf.CodeMissingRequiredData, env.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, path, "secretary-1", domainwf.RoleSecretary, transition(0, domainwf.StatusApproved, "OR-1"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, domainwf.CodeIllegalTransition, env.Code)
	})

	t.Run("role not held", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, path, "secretary-1", domainwf.RoleTreasurer, transition(0, domainwf.StatusApproved, "OR-1"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, domainwf.CodeUnauthorized, env.Code)
	})

	t.Run("missing expected version", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, path, "treasurer-1", domainwf.RoleTreasurer, map[string]string{"target_status": "APPROVED"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeBadRequest, env.Code)
	})

	t.Run("approve", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, path, "treasurer-1", domainwf.RoleTreasurer, transition(0, domainwf.StatusApproved, "OR-2026-0001"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var updated entity.RequestRecord
		require.NoError(t, json.Unmarshal(env.Data, &updated))
		assert.Equal(t, domainwf.StatusApproved, updated.Status)
		assert.Equal(t, int64(1), updated.Version)
		assert.Equal(t, "OR-2026-0001", updated.ORNumberValue())
		assert.Equal(t, "treasurer-1", updated.ApproverValue())
		require.Len(t, updated.History, 1)
	})

	t.Run("stale version", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, path, "treasurer-1", domainwf.RoleTreasurer, transition(0, domainwf.StatusRejected, ""))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, domainwf.CodeStaleVersion, env.Code)
		assert.Contains(t, env.Error, "refresh")
	})

	t.Run("unknown request", func(t *testing.T) {
		w, env := do(t, s, http.MethodPost, "/api/requests/nope/transitions", "treasurer-1", domainwf.RoleTreasurer, transition(0, domainwf.StatusApproved, "OR-1"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, domainwf.CodeNotFound, env.Code)
	})
}

func TestGetRequestAndTransitions(t *testing.T) {
	s := newTestServer(t)
	record := createClearance(t, s)

	w, env := do(t, s, http.MethodGet, "/api/requests/"+record.ID, "secretary-1", domainwf.RoleSecretary, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got entity.RequestRecord
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, record.ID, got.ID)

	w, _ = do(t, s, http.MethodGet, "/api/requests/"+record.ID, "secretary-2", domainwf.RoleSecretary, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, s, http.MethodGet, "/api/requests/"+record.ID+"/transitions", "treasurer-1", domainwf.RoleTreasurer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var options TransitionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &options))
	assert.Equal(t, domainwf.StatusPending, options.Status)
	assert.Equal(t, []TransitionOption{
		{TargetStatus: domainwf.StatusApproved, RequiresORNumber: true},
		{TargetStatus: domainwf.StatusRejected},
	}, options.Transitions)

	w, env = do(t, s, http.MethodGet, "/api/requests/"+record.ID+"/transitions", "juan", domainwf.RoleResident, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &options))
	assert.Empty(t, options.Transitions)
}

func TestListRequests(t *testing.T) {
	s := newTestServer(t)
	createClearance(t, s)
	createClearance(t, s)

	count := func(w *httptest.ResponseRecorder, env envelope) int {
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var records []entity.RequestRecord
		require.NoError(t, json.Unmarshal(env.Data, &records))
		return len(records)
	}

	assert.Equal(t, 2, count(do(t, s, http.MethodGet, "/api/requests", "secretary-1", domainwf.RoleSecretary, nil)))
	assert.Equal(t, 0, count(do(t, s, http.MethodGet, "/api/requests", "secretary-2", domainwf.RoleSecretary, nil)))
	assert.Equal(t, 2, count(do(t, s, http.MethodGet, "/api/requests?status=PENDING", "admin", domainwf.RoleSuperAdmin, nil)))
	assert.Equal(t, 1, count(do(t, s, http.MethodGet, "/api/requests?limit=1", "juan", domainwf.RoleResident, nil)))
	assert.Equal(t, 0, count(do(t, s, http.MethodGet, "/api/requests", "pedro", domainwf.RoleResident, nil)))

	w, env := do(t, s, http.MethodGet, "/api/requests?barangay_id=brgy-1", "secretary-2", domainwf.RoleSecretary, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, domainwf.CodeUnauthorized, env.Code)

	w, env = do(t, s, http.MethodGet, "/api/requests?limit=abc", "admin", domainwf.RoleSuperAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeBadRequest, env.Code)
}

// failingEngine returns a fixed error from every call
type failingEngine struct {
	err error
}

func (f failingEngine) CreateRequest(context.Context, workflow.NewRequest) (*entity.RequestRecord, error) {
	return nil, f.err
}

func (f failingEngine) Apply(context.Context, workflow.TransitionRequest) (*entity.RequestRecord, error) {
	return nil, f.err
}

func (f failingEngine) Get(context.Context, string) (*entity.RequestRecord, error) {
	return nil, f.err
}

func (f failingEngine) ListByActorScope(context.Context, domainwf.Role, string, entity.RequestFilter) ([]*entity.RequestRecord, error) {
	return nil, f.err
}

func (f failingEngine) AvailableTransitions(context.Context, string, domainwf.Role, string) (*entity.RequestRecord, []domainwf.Transition, error) {
	return nil, nil, f.err
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{fmt.Errorf("%w: database is locked", domainwf.ErrStorageFailure), http.StatusServiceUnavailable, domainwf.CodeStorageFailure},
		{fmt.Errorf("boom"), http.StatusInternalServerError, domainwf.CodeInternal},
		{domainwf.ErrNotFound, http.StatusNotFound, domainwf.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			s := NewServer(DefaultServerConfig(), failingEngine{err: tt.err}, nopLogger{})
			w, env := do(t, s, http.MethodGet, "/api/requests", "admin", domainwf.RoleSuperAdmin, nil)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, env.Code)
			assert.NotContains(t, env.Error, "database is locked")
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	w, _ := do(t, s, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	called := false
	s = newTestServer(t,
		WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
		WithMiddleware(func(c *gin.Context) {
			called = true
			c.Next()
		}),
	)
	w, _ = do(t, s, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}
