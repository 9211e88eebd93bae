package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermSelfRead     Permission = "self:read"
	PermSelfManage   Permission = "self:manage"
	PermSessionSelf  Permission = "session:self"
	PermUserManage   Permission = "user:manage"
	PermUserActivate Permission = "user:activate"
	PermStatsRead    Permission = "stats:read"
	PermSessionPurge Permission = "session:purge"
	PermRoleAssign   Permission = "role:assign"
	PermAuditRead    Permission = "audit:read"
)

// selfPermissions is what every account may do to itself.
var selfPermissions = []Permission{
	PermSelfRead,
	PermSelfManage,
	PermSessionSelf,
}

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleUser:     selfPermissions,
	RoleHardware: selfPermissions,
	RoleAdmin: append(append([]Permission{}, selfPermissions...),
		PermUserManage,
		PermUserActivate,
		PermStatsRead,
		PermSessionPurge,
		PermRoleAssign,
		PermAuditRead,
	),
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
