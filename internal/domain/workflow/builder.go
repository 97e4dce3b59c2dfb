package workflow

import (
	"fmt"
)

// SideDataRequirement describes data a transition must carry
type SideDataRequirement string

const (
	RequireNone     SideDataRequirement = "NONE"
	RequireORNumber SideDataRequirement = "REQUIRE_OR_NUMBER"
)

// Transition is one row of the transition table
type Transition struct {
	Type        RequestType
	From        Status
	Role        Role
	To          Status
	Requirement SideDataRequirement
}

// SetsApprover returns true if the transition attributes the request to its actor.
// OR-bearing approvals, rejections and resolutions do.
func (t Transition) SetsApprover() bool {
	return t.Requirement == RequireORNumber || t.To == StatusRejected || t.To == StatusResolved
}

// TableBuilder builds an immutable transition table
type TableBuilder interface {
	// Configure returns a row configuration for the given type and source status
	Configure(requestType RequestType, from Status) StatusConfiguration

	// Build creates the table from all configured rows
	Build() *Table
}

// StatusConfiguration configures transitions leaving a specific status
type StatusConfiguration interface {
	// Permit allows role to move the request to the target status
	Permit(role Role, to Status, requirement SideDataRequirement) StatusConfiguration
}

type tableKey struct {
	requestType RequestType
	from        Status
	role        Role
}

// statusConfig implements StatusConfiguration
type statusConfig struct {
	builder     *tableBuilder
	requestType RequestType
	from        Status
}

// tableBuilder implements TableBuilder
type tableBuilder struct {
	rows []Transition
	seen map[tableKey]map[Status]bool
}

// NewTableBuilder creates a new transition table builder
func NewTableBuilder() TableBuilder {
	return &tableBuilder{
		seen: make(map[tableKey]map[Status]bool),
	}
}

// Configure returns a row configuration for the given type and source status
func (b *tableBuilder) Configure(requestType RequestType, from Status) StatusConfiguration {
	if !requestType.IsValid() {
		panic(fmt.Sprintf("invalid request type: %s", requestType))
	}
	if !from.ValidFor(requestType) {
		panic(fmt.Sprintf("%v: %s is not a %s status", ErrInvalidStatus, from, requestType))
	}

	return &statusConfig{
		builder:     b,
		requestType: requestType,
		from:        from,
	}
}

// Build creates the table from all configured rows
func (b *tableBuilder) Build() *Table {
	t := &Table{
		rows:    make(map[tableKey][]Transition),
		sources: make(map[RequestType]map[Status]bool),
	}

	// Copy rows so later builder use cannot mutate the table
	for _, row := range b.rows {
		key := tableKey{requestType: row.Type, from: row.From, role: row.Role}
		t.rows[key] = append(t.rows[key], row)

		if t.sources[row.Type] == nil {
			t.sources[row.Type] = make(map[Status]bool)
		}
		t.sources[row.Type][row.From] = true
	}

	return t
}

// Permit allows role to move the request to the target status
func (c *statusConfig) Permit(role Role, to Status, requirement SideDataRequirement) StatusConfiguration {
	if !role.IsValid() {
		panic(fmt.Sprintf("invalid role: %s", role))
	}
	if !to.ValidFor(c.requestType) {
		panic(fmt.Sprintf("%v: %s is not a %s status", ErrInvalidStatus, to, c.requestType))
	}
	if requirement != RequireNone && requirement != RequireORNumber {
		panic(fmt.Sprintf("invalid side data requirement: %s", requirement))
	}

	key := tableKey{requestType: c.requestType, from: c.from, role: role}
	if c.builder.seen[key] == nil {
		c.builder.seen[key] = make(map[Status]bool)
	}
	if c.builder.seen[key][to] {
		panic(fmt.Sprintf("duplicate transition: %s %s -[%s]-> %s", c.requestType, c.from, role, to))
	}
	c.builder.seen[key][to] = true

	c.builder.rows = append(c.builder.rows, Transition{
		Type:        c.requestType,
		From:        c.from,
		Role:        role,
		To:          to,
		Requirement: requirement,
	})

	return c
}
