package workflow

// Role is an actor capability set. Roles are disjoint, not a hierarchy.
type Role string

const (
	RoleResident   Role = "RESIDENT"
	RoleSecretary  Role = "SECRETARY"
	RoleTreasurer  Role = "TREASURER"
	RoleChairman   Role = "CHAIRMAN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var validRoles = map[Role]bool{
	RoleResident:   true,
	RoleSecretary:  true,
	RoleTreasurer:  true,
	RoleChairman:   true,
	RoleSuperAdmin: true,
}

// AllRoles lists every role in a stable order
func AllRoles() []Role {
	return []Role{RoleResident, RoleSecretary, RoleTreasurer, RoleChairman, RoleSuperAdmin}
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsStaff returns true for roles bound to a single barangay's staff
func (r Role) IsStaff() bool {
	return r == RoleSecretary || r == RoleTreasurer || r == RoleChairman
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
