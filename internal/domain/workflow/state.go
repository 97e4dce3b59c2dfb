package workflow

// Status represents a request status. Statuses are scoped per RequestType:
// a value valid for one type may be outside another type's vocabulary.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusApproved           Status = "APPROVED"
	StatusForPickup          Status = "FOR_PICKUP"
	StatusCompleted          Status = "COMPLETED"
	StatusRejected           Status = "REJECTED"
	StatusUnderInvestigation Status = "UNDER_INVESTIGATION"
	StatusResolved           Status = "RESOLVED"
	StatusClosed             Status = "CLOSED"
	StatusNew                Status = "NEW"
	StatusInProgress         Status = "IN_PROGRESS"
)

// RequestType identifies a document request or report kind
type RequestType string

const (
	TypeBarangayClearance RequestType = "BARANGAY_CLEARANCE"
	TypeBusinessClearance RequestType = "BUSINESS_CLEARANCE"
	TypeBlotterReport     RequestType = "BLOTTER_REPORT"
	TypeIncidentReport    RequestType = "INCIDENT_REPORT"
)

// vocabulary describes the statuses a request type may occupy
type vocabulary struct {
	initial  Status
	statuses map[Status]bool
	terminal map[Status]bool
}

var clearanceVocabulary = vocabulary{
	initial: StatusPending,
	statuses: map[Status]bool{
		StatusPending:   true,
		StatusApproved:  true,
		StatusForPickup: true,
		StatusCompleted: true,
		StatusRejected:  true,
	},
	terminal: map[Status]bool{
		StatusCompleted: true,
		StatusRejected:  true,
	},
}

var vocabularies = map[RequestType]vocabulary{
	TypeBarangayClearance: clearanceVocabulary,
	TypeBusinessClearance: clearanceVocabulary,
	TypeBlotterReport: {
		initial: StatusPending,
		statuses: map[Status]bool{
			StatusPending:            true,
			StatusUnderInvestigation: true,
			StatusResolved:           true,
			StatusClosed:             true,
		},
		terminal: map[Status]bool{
			StatusClosed: true,
		},
	},
	TypeIncidentReport: {
		initial: StatusNew,
		statuses: map[Status]bool{
			StatusNew:        true,
			StatusInProgress: true,
			StatusResolved:   true,
		},
		terminal: map[Status]bool{
			StatusResolved: true,
		},
	},
}

// AllRequestTypes lists every supported request type in a stable order
func AllRequestTypes() []RequestType {
	return []RequestType{
		TypeBarangayClearance,
		TypeBusinessClearance,
		TypeBlotterReport,
		TypeIncidentReport,
	}
}

// IsValid returns true if the request type is supported
func (t RequestType) IsValid() bool {
	_, ok := vocabularies[t]
	return ok
}

// String returns the string representation of the request type
func (t RequestType) String() string {
	return string(t)
}

// InitialStatus returns the status a freshly submitted request starts in
func (t RequestType) InitialStatus() (Status, error) {
	v, ok := vocabularies[t]
	if !ok {
		return "", ErrInvalidRequest
	}
	return v.initial, nil
}

// Statuses returns the vocabulary of the request type
func (t RequestType) Statuses() []Status {
	v, ok := vocabularies[t]
	if !ok {
		return nil
	}
	// Fixed order keeps callers and tests deterministic
	order := []Status{
		StatusNew, StatusPending, StatusInProgress, StatusUnderInvestigation,
		StatusApproved, StatusForPickup, StatusResolved,
		StatusCompleted, StatusClosed, StatusRejected,
	}
	result := make([]Status, 0, len(v.statuses))
	for _, s := range order {
		if v.statuses[s] {
			result = append(result, s)
		}
	}
	return result
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// ValidFor returns true if the status belongs to the vocabulary of the request type
func (s Status) ValidFor(t RequestType) bool {
	return vocabularies[t].statuses[s]
}

// IsTerminalFor returns true if no lifecycle continues past the status for the request type
func (s Status) IsTerminalFor(t RequestType) bool {
	return vocabularies[t].terminal[s]
}
