package entity

import (
	"encoding/json"
	"time"

	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

// RequestRecord is a document request or report moving through its lifecycle.
// It is mutated only by the lifecycle engine.
type RequestRecord struct {
	ID                string               `json:"id"`
	Type              workflow.RequestType `json:"type"`
	Status            workflow.Status      `json:"status"`
	Version           int64                `json:"version"`
	BarangayID        string               `json:"barangay_id"`
	RequesterIdentity string               `json:"requester_identity"`
	Payload           json.RawMessage      `json:"payload,omitempty"`
	ORNumber          *string              `json:"or_number,omitempty"`
	ApproverIdentity  *string              `json:"approver_identity,omitempty"`
	ApprovedAt        *time.Time           `json:"approved_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	History           []HistoryEntry       `json:"history"`
}

// HistoryEntry is one accepted transition. Entries are never mutated or reordered.
type HistoryEntry struct {
	RequestID     string          `json:"request_id"`
	Sequence      int64           `json:"sequence"`
	FromStatus    workflow.Status `json:"from_status"`
	ToStatus      workflow.Status `json:"to_status"`
	ActorRole     workflow.Role   `json:"actor_role"`
	ActorIdentity string          `json:"actor_identity"`
	Timestamp     time.Time       `json:"timestamp"`
	ORNumber      *string         `json:"or_number,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
}

// SideData is optional data carried by a transition request
type SideData struct {
	ORNumber string `json:"or_number,omitempty"`
	Remarks  string `json:"remarks,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with a store
func (r *RequestRecord) Clone() *RequestRecord {
	if r == nil {
		return nil
	}

	c := *r
	if r.Payload != nil {
		c.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	c.ORNumber = cloneString(r.ORNumber)
	c.ApproverIdentity = cloneString(r.ApproverIdentity)
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}

	c.History = make([]HistoryEntry, len(r.History))
	for i, h := range r.History {
		c.History[i] = h.Clone()
	}

	return &c
}

// Clone returns a deep copy of the entry
func (h HistoryEntry) Clone() HistoryEntry {
	h.ORNumber = cloneString(h.ORNumber)
	return h
}

// ORNumberValue returns the OR number or an empty string when unset
func (r *RequestRecord) ORNumberValue() string {
	if r.ORNumber == nil {
		return ""
	}
	return *r.ORNumber
}

// ApproverValue returns the approver identity or an empty string when unset
func (r *RequestRecord) ApproverValue() string {
	if r.ApproverIdentity == nil {
		return ""
	}
	return *r.ApproverIdentity
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
