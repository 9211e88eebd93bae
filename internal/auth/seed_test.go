package auth

import (
	"context"
	"testing"
)

func testRoot() RootConfig {
	return RootConfig{
		Enabled:  true,
		Username: testRootUsername,
		Password: "root-password",
		Email:    "root@example.com",
	}
}

func TestSeedRoot_CreatesOnEmptyDB(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.directory.SeedRoot(ctx, testRoot())
	if err != nil {
		t.Fatalf("SeedRoot() error = %v", err)
	}
	if !created {
		t.Fatal("SeedRoot() should report creation on an empty database")
	}

	root, err := env.users.GetByUsername(ctx, testRootUsername)
	if err != nil {
		t.Fatalf("GetByUsername(root) error = %v", err)
	}

	if root.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", root.Role, RoleAdmin)
	}
	if !root.IsActive {
		t.Error("root should be active")
	}
	if root.Email != "root@example.com" {
		t.Errorf("Email = %q, want %q", root.Email, "root@example.com")
	}

	ok, err := VerifyPassword("root-password", root.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("configured password should verify against stored hash")
	}
}

func TestSeedRoot_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.directory.SeedRoot(ctx, testRoot()); err != nil {
		t.Fatalf("SeedRoot() first call error = %v", err)
	}
	before, err := env.users.GetByUsername(ctx, testRootUsername)
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}

	second := testRoot()
	second.Password = "a-different-password"
	created, err := env.directory.SeedRoot(ctx, second)
	if err != nil {
		t.Fatalf("SeedRoot() second call error = %v", err)
	}
	if created {
		t.Error("SeedRoot() should not recreate an existing root")
	}

	after, err := env.users.GetByUsername(ctx, testRootUsername)
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if after.PasswordHash != before.PasswordHash {
		t.Error("existing root password should be left untouched")
	}

	count, err := env.users.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestSeedRoot_SkipsWhenRootExistsWithOtherRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedTestUser(t, testRootUsername, RoleUser)

	created, err := env.directory.SeedRoot(context.Background(), testRoot())
	if err != nil {
		t.Fatalf("SeedRoot() error = %v", err)
	}
	if created {
		t.Error("SeedRoot() should leave a pre-existing account alone")
	}
}

func TestSeedRoot_Disabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := testRoot()
	root.Enabled = false
	created, err := env.directory.SeedRoot(ctx, root)
	if err != nil {
		t.Fatalf("SeedRoot() error = %v", err)
	}
	if created {
		t.Error("SeedRoot() should do nothing when disabled")
	}

	count, err := env.users.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}
