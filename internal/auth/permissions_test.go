package auth

import (
	"errors"
	"testing"
)

func TestHasPermission_Admin(t *testing.T) {
	all := []Permission{
		PermSelfRead, PermSelfManage, PermSessionSelf,
		PermUserManage, PermUserActivate, PermStatsRead,
		PermSessionPurge, PermRoleAssign, PermAuditRead,
	}

	for _, perm := range all {
		if !HasPermission(RoleAdmin, perm) {
			t.Errorf("admin should have %s", perm)
		}
	}
}

func TestHasPermission_UserAndHardware(t *testing.T) {
	should := []Permission{PermSelfRead, PermSelfManage, PermSessionSelf}
	shouldNot := []Permission{
		PermUserManage, PermUserActivate, PermStatsRead,
		PermSessionPurge, PermRoleAssign, PermAuditRead,
	}

	for _, role := range []Role{RoleUser, RoleHardware} {
		for _, perm := range should {
			if !HasPermission(role, perm) {
				t.Errorf("%s should have %s", role, perm)
			}
		}
		for _, perm := range shouldNot {
			if HasPermission(role, perm) {
				t.Errorf("%s should NOT have %s", role, perm)
			}
		}
	}
}

func TestHasPermission_InvalidRole(t *testing.T) {
	if HasPermission(Role("nonexistent"), PermSelfRead) {
		t.Error("unknown role should have no permissions")
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) == 0 {
		t.Fatal("PermissionsForRole(admin) should return permissions")
	}

	// Should return a copy, not the original slice
	perms[0] = "modified"
	original := PermissionsForRole(RoleAdmin)
	if original[0] == "modified" {
		t.Error("PermissionsForRole should return a copy, not the original")
	}

	// Admin's extension must not leak into the shared self set.
	if len(PermissionsForRole(RoleUser)) != len(selfPermissions) {
		t.Error("user permissions should equal the self set")
	}
}

func TestPermissionsForRole_Unknown(t *testing.T) {
	if perms := PermissionsForRole(Role("unknown")); perms != nil {
		t.Error("PermissionsForRole(unknown) should return nil")
	}
}

func TestIsValidUserRole(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleUser, RoleHardware} {
		if !IsValidUserRole(r) {
			t.Errorf("%s should be a valid role", r)
		}
	}
	if IsValidUserRole(Role("guest")) {
		t.Error("guest should NOT be a valid role")
	}
}

func TestRequireSelfOrAdmin(t *testing.T) {
	admin := &User{ID: "a", Role: RoleAdmin}
	bob := &User{ID: "b", Role: RoleUser}
	gateway := &User{ID: "h", Role: RoleHardware}

	tests := []struct {
		name    string
		current *User
		target  string
		wantErr bool
	}{
		{"self", bob, "b", false},
		{"admin on other", admin, "b", false},
		{"user on other", bob, "a", true},
		{"hardware on other", gateway, "b", true},
		{"hardware on self", gateway, "h", false},
		{"nil caller", nil, "b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireSelfOrAdmin(tt.current, tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RequireSelfOrAdmin() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrForbidden) {
				t.Errorf("RequireSelfOrAdmin() error = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(&User{ID: "a", Role: RoleAdmin}); err != nil {
		t.Errorf("RequireAdmin(admin) error = %v", err)
	}
	for _, r := range []Role{RoleUser, RoleHardware} {
		if err := RequireAdmin(&User{ID: "x", Role: r}); !errors.Is(err, ErrForbidden) {
			t.Errorf("RequireAdmin(%s) error = %v, want ErrForbidden", r, err)
		}
	}
	if err := RequireAdmin(nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireAdmin(nil) error = %v, want ErrForbidden", err)
	}
}
