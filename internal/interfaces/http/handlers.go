package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/barangay-lifecycle/internal/application/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/pkg/utils"
)

const (
	// HeaderActorIdentity carries the caller's identity
	HeaderActorIdentity = "X-Actor-Identity"
	// HeaderActorRole carries the role the caller acts as
	HeaderActorRole = "X-Actor-Role"

	codeBadRequest = "BAD_REQUEST"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine workflow.LifecycleEngine
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine workflow.LifecycleEngine, logger Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateRequestBody is the body of POST /api/requests
type CreateRequestBody struct {
	Type       domainwf.RequestType `json:"type" binding:"required"`
	BarangayID string               `json:"barangay_id" binding:"required"`
	Payload    json.RawMessage      `json:"payload"`
}

// TransitionBody is the body of POST /api/requests/:id/transitions
type TransitionBody struct {
	ExpectedVersion *int64          `json:"expected_version" binding:"required"`
	TargetStatus    domainwf.Status `json:"target_status" binding:"required"`
	ORNumber        string          `json:"or_number"`
	Remarks         string          `json:"remarks"`
}

// TransitionOption is one action the caller may take on a request
type TransitionOption struct {
	TargetStatus     domainwf.Status `json:"target_status"`
	RequiresORNumber bool            `json:"requires_or_number"`
}

// TransitionsResponse lists the actions available to the caller
type TransitionsResponse struct {
	RequestID   string             `json:"request_id"`
	Status      domainwf.Status    `json:"status"`
	Version     int64              `json:"version"`
	Transitions []TransitionOption `json:"transitions"`
}

type actor struct {
	identity string
	role     domainwf.Role
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	who, ok := h.actor(c)
	if !ok {
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	record, err := h.engine.CreateRequest(c.Request.Context(), workflow.NewRequest{
		Type:              body.Type,
		BarangayID:        body.BarangayID,
		RequesterIdentity: who.identity,
		Payload:           body.Payload,
	})
	if err != nil {
		h.respondError(c, "Failed to create request", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: record})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	who, ok := h.actor(c)
	if !ok {
		return
	}

	record, _, err := h.engine.AvailableTransitions(c.Request.Context(), c.Param("id"), who.role, who.identity)
	if err != nil {
		h.respondError(c, "Failed to get request", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	who, ok := h.actor(c)
	if !ok {
		return
	}

	var filter entity.RequestFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	records, err := h.engine.ListByActorScope(c.Request.Context(), who.role, who.identity, filter)
	if err != nil {
		h.respondError(c, "Failed to list requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// ListTransitions handles GET /api/requests/:id/transitions
func (h *Handlers) ListTransitions(c *gin.Context) {
	who, ok := h.actor(c)
	if !ok {
		return
	}

	record, rows, err := h.engine.AvailableTransitions(c.Request.Context(), c.Param("id"), who.role, who.identity)
	if err != nil {
		h.respondError(c, "Failed to list transitions", err)
		return
	}

	options := make([]TransitionOption, 0, len(rows))
	for _, row := range rows {
		options = append(options, TransitionOption{
			TargetStatus:     row.To,
			RequiresORNumber: row.Requirement == domainwf.RequireORNumber,
		})
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TransitionsResponse{
			RequestID:   record.ID,
			Status:      record.Status,
			Version:     record.Version,
			Transitions: options,
		},
	})
}

// ApplyTransition handles POST /api/requests/:id/transitions
func (h *Handlers) ApplyTransition(c *gin.Context) {
	who, ok := h.actor(c)
	if !ok {
		return
	}

	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	record, err := h.engine.Apply(c.Request.Context(), workflow.TransitionRequest{
		RequestID:       c.Param("id"),
		ExpectedVersion: *body.ExpectedVersion,
		ActorRole:       who.role,
		ActorIdentity:   who.identity,
		TargetStatus:    body.TargetStatus,
		SideData: entity.SideData{
			ORNumber: body.ORNumber,
			Remarks:  utils.SanitizeRemarks(body.Remarks),
		},
	})
	if err != nil {
		h.respondError(c, "Failed to apply transition", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// actor reads the caller from headers and aborts with 401 if either is missing
func (h *Handlers) actor(c *gin.Context) (actor, bool) {
	identity := strings.TrimSpace(c.GetHeader(HeaderActorIdentity))
	role := domainwf.Role(strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderActorRole))))

	if identity == "" || role == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   "actor identity and role headers are required",
			Code:    domainwf.CodeUnauthorized,
		})
		return actor{}, false
	}
	return actor{identity: identity, role: role}, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error("Invalid input", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    codeBadRequest,
	})
}

// respondError maps a lifecycle error to its status code and message
func (h *Handlers) respondError(c *gin.Context, logMsg string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, "path", c.FullPath(), "id", c.Param("id"), "error", err)
	} else {
		h.logger.Info(logMsg, "path", c.FullPath(), "id", c.Param("id"), "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    domainwf.Code(err),
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound, "request not found"
	case errors.Is(err, domainwf.ErrStaleVersion):
		return http.StatusConflict, "request was changed by someone else, please refresh and retry"
	case errors.Is(err, domainwf.ErrIllegalTransition):
		return http.StatusUnprocessableEntity, "transition not allowed"
	case errors.Is(err, domainwf.ErrMissingRequiredData):
		return http.StatusUnprocessableEntity, "transition requires an OR number"
	case errors.Is(err, domainwf.ErrUnauthorized):
		return http.StatusForbidden, "actor is not allowed to perform this action"
	case errors.Is(err, domainwf.ErrInvalidRequest), errors.Is(err, domainwf.ErrInvalidStatus):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domainwf.ErrStorageFailure):
		return http.StatusServiceUnavailable, "storage temporarily unavailable, please retry"
	}
	return http.StatusInternalServerError, "internal error"
}
