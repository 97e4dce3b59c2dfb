package workflow

import "sync"

// BuildBarangayTable creates the transition table for every barangay request type
func BuildBarangayTable() *Table {
	builder := NewTableBuilder()

	// Barangay and business clearances share one lifecycle
	for _, clearance := range []RequestType{TypeBarangayClearance, TypeBusinessClearance} {
		builder.Configure(clearance, StatusPending).
			Permit(RoleTreasurer, StatusApproved, RequireORNumber).
			Permit(RoleTreasurer, StatusRejected, RequireNone)

		builder.Configure(clearance, StatusApproved).
			Permit(RoleSecretary, StatusForPickup, RequireNone)

		builder.Configure(clearance, StatusForPickup).
			Permit(RoleSecretary, StatusCompleted, RequireNone)
	}

	// Blotter reports have no reject path
	builder.Configure(TypeBlotterReport, StatusPending).
		Permit(RoleTreasurer, StatusUnderInvestigation, RequireORNumber)

	builder.Configure(TypeBlotterReport, StatusUnderInvestigation).
		Permit(RoleSecretary, StatusResolved, RequireNone).
		Permit(RoleChairman, StatusResolved, RequireNone)

	builder.Configure(TypeBlotterReport, StatusResolved).
		Permit(RoleSecretary, StatusClosed, RequireNone).
		Permit(RoleChairman, StatusClosed, RequireNone)

	builder.Configure(TypeIncidentReport, StatusNew).
		Permit(RoleSecretary, StatusInProgress, RequireNone)

	builder.Configure(TypeIncidentReport, StatusInProgress).
		Permit(RoleSecretary, StatusResolved, RequireNone)

	// CLOSED, COMPLETED, REJECTED and incident RESOLVED have no outgoing rows

	return builder.Build()
}

var (
	defaultTableOnce sync.Once
	defaultTable     *Table
)

// DefaultTable returns the shared barangay transition table
func DefaultTable() *Table {
	defaultTableOnce.Do(func() {
		defaultTable = BuildBarangayTable()
	})
	return defaultTable
}
