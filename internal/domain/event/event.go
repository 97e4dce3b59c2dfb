package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequestID     string                 `json:"request_id"`
	Entry         *entity.HistoryEntry   `json:"entry,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, requestID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RequestID:     requestID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewTransitionEvent wraps an accepted history entry.
// The entry is copied so handlers cannot alter the committed history.
func NewTransitionEvent(entry entity.HistoryEntry) *Event {
	e := entry.Clone()
	evt := NewEvent(TypeRequestTransitioned, entry.RequestID, map[string]interface{}{
		"from_status": entry.FromStatus.String(),
		"to_status":   entry.ToStatus.String(),
		"actor_role":  entry.ActorRole.String(),
		"sequence":    entry.Sequence,
	})
	evt.Entry = &e
	evt.Timestamp = entry.Timestamp
	return evt
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
