package auth

// RequireSelfOrAdmin allows the call when current is the target account or
// holds user management rights.
func RequireSelfOrAdmin(current *User, targetID string) error {
	if current == nil {
		return ErrForbidden
	}
	if current.ID == targetID || HasPermission(current.Role, PermUserManage) {
		return nil
	}
	return ErrForbidden
}

// RequireAdmin allows the call only for admins.
func RequireAdmin(current *User) error {
	return RequirePermission(current, PermUserManage)
}

// RequirePermission allows the call when current's role grants perm.
func RequirePermission(current *User, perm Permission) error {
	if current == nil || !HasPermission(current.Role, perm) {
		return ErrForbidden
	}
	return nil
}
