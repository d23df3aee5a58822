package authz

import (
	"testing"

	cerrors "github.com/porthorian/cityauthz/pkg/errors"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"admin":            RoleAdmin,
		" Manager ":        RoleManager,
		"building_manager": RoleBuildingManager,
		"building-manager": RoleBuildingManager,
		"CITIZEN":          RoleCitizen,
	}
	for input, want := range cases {
		got, err := ParseRole(input)
		if err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", input, got, want)
		}
	}

	if _, err := ParseRole("superuser"); !cerrors.IsCode(err, cerrors.CodeUnknownRole) {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestParsePermissionRoundTripsTokens(t *testing.T) {
	for _, perm := range AllPermissions() {
		got, err := ParsePermission(perm.String())
		if err != nil {
			t.Fatalf("ParsePermission(%q) failed: %v", perm, err)
		}
		if got != perm {
			t.Fatalf("ParsePermission(%q) = %s", perm, got)
		}
	}

	if got, err := ParsePermission("MANAGE_USERS"); err != nil || got != PermissionManageUsers {
		t.Fatalf("expected underscore form to parse, got %s %v", got, err)
	}
	if _, err := ParsePermission("launch-rockets"); !cerrors.IsCode(err, cerrors.CodeUnknownPermission) {
		t.Fatalf("expected unknown permission error, got %v", err)
	}
}

func TestPermissionCategories(t *testing.T) {
	counts := map[PermissionCategory]int{}
	for _, perm := range AllPermissions() {
		counts[perm.Category()]++
	}

	want := map[PermissionCategory]int{
		CategoryAdministration: 4,
		CategoryDataAccess:     5,
		CategoryOperations:     5,
		CategoryFinancial:      4,
	}
	for category, n := range want {
		if counts[category] != n {
			t.Fatalf("expected %d %s permissions, got %d", n, category, counts[category])
		}
	}
	if Permission(99).Category() != "" {
		t.Fatal("expected unknown permission to have no category")
	}
}

func TestSetHelpers(t *testing.T) {
	set := NewPermissionSet(PermissionViewCosts, PermissionManageUsers)

	if !HasAllPermissions(set, NewPermissionSet(PermissionViewCosts)) {
		t.Fatal("expected HasAllPermissions to succeed")
	}
	if HasAllPermissions(set, NewPermissionSet(PermissionViewCosts, PermissionExportData)) {
		t.Fatal("expected HasAllPermissions to fail")
	}
	if !HasAnyPermissions(set, NewPermissionSet(PermissionViewCosts, PermissionExportData)) {
		t.Fatal("expected HasAnyPermissions to succeed")
	}
	if got := set.Strings(); len(got) != 2 || got[0] != "manage-users" || got[1] != "view-costs" {
		t.Fatalf("unexpected set strings: %v", got)
	}

	roles := NewRoleSet(RoleCitizen, RoleAdmin, Role(50))
	if got := roles.List(); len(got) != 2 || got[0] != RoleAdmin || got[1] != RoleCitizen {
		t.Fatalf("unexpected role list: %v", got)
	}
}
