package workflow

import "sort"

// Table is an immutable, side-effect-free transition table.
// Lookups on pairs without rows return nothing rather than an error.
type Table struct {
	rows    map[tableKey][]Transition
	sources map[RequestType]map[Status]bool
}

// AllowedTransitions returns the transitions role may perform from the current status,
// in declaration order. The result is empty for terminal or role-unreachable states.
func (t *Table) AllowedTransitions(requestType RequestType, current Status, role Role) []Transition {
	rows := t.rows[tableKey{requestType: requestType, from: current, role: role}]
	if len(rows) == 0 {
		return []Transition{}
	}
	return append([]Transition(nil), rows...)
}

// Lookup resolves the row for an explicitly requested target status
func (t *Table) Lookup(requestType RequestType, current Status, role Role, target Status) (Transition, bool) {
	for _, row := range t.rows[tableKey{requestType: requestType, from: current, role: role}] {
		if row.To == target {
			return row, true
		}
	}
	return Transition{}, false
}

// HasAnyTransition returns true if some role may leave the status.
// A false result means the state is terminal or unreachable by any actor.
func (t *Table) HasAnyTransition(requestType RequestType, current Status) bool {
	return t.sources[requestType][current]
}

// Rows returns every row in a stable order (type, from, role, to)
func (t *Table) Rows() []Transition {
	var all []Transition
	for _, rows := range t.rows {
		all = append(all, rows...)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.From != b.From {
			return a.From < b.From
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.To < b.To
	})
	return all
}
