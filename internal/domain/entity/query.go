package entity

import "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"

const (
	// DefaultListLimit is used when a query does not set a limit
	DefaultListLimit = 50

	// MaxListLimit caps a single page of results
	MaxListLimit = 200
)

// RequestFilter narrows a listing. Zero values mean "any".
type RequestFilter struct {
	Type       workflow.RequestType `json:"type,omitempty" form:"type"`
	Status     workflow.Status      `json:"status,omitempty" form:"status"`
	BarangayID string               `json:"barangay_id,omitempty" form:"barangay_id"`
	Limit      int                  `json:"limit,omitempty" form:"limit"`
	Offset     int                  `json:"offset,omitempty" form:"offset"`
}

// RequestQuery is a filter after scope resolution, as handed to a repository
type RequestQuery struct {
	RequestFilter
	RequesterIdentity string
}

// Normalized clamps paging values into their allowed ranges
func (f RequestFilter) Normalized() RequestFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether the record satisfies the query
func (q RequestQuery) Matches(r *RequestRecord) bool {
	if q.Type != "" && r.Type != q.Type {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.BarangayID != "" && r.BarangayID != q.BarangayID {
		return false
	}
	if q.RequesterIdentity != "" && r.RequesterIdentity != q.RequesterIdentity {
		return false
	}
	return true
}
