package authz

import "math/bits"

// PermissionSet is a bitmask with one bit per Permission.
type PermissionSet uint64

// RoleSet is a bitmask with one bit per Role.
type RoleSet uint64

func NewPermissionSet(perms ...Permission) PermissionSet {
	var set PermissionSet
	for _, perm := range perms {
		set |= perm.bit()
	}
	return set
}

func (s PermissionSet) Has(perm Permission) bool {
	bit := perm.bit()
	return bit != 0 && s&bit != 0
}

func (s PermissionSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// List returns the permissions in declaration order.
func (s PermissionSet) List() []Permission {
	perms := make([]Permission, 0, s.Len())
	for _, perm := range AllPermissions() {
		if s.Has(perm) {
			perms = append(perms, perm)
		}
	}
	return perms
}

func (s PermissionSet) Strings() []string {
	perms := s.List()
	out := make([]string, len(perms))
	for i, perm := range perms {
		out[i] = perm.String()
	}
	return out
}

func (s PermissionSet) known() bool {
	return s&^allPermissionsMask() == 0
}

func NewRoleSet(roles ...Role) RoleSet {
	var set RoleSet
	for _, role := range roles {
		set |= role.bit()
	}
	return set
}

func (s RoleSet) Has(role Role) bool {
	bit := role.bit()
	return bit != 0 && s&bit != 0
}

func (s RoleSet) List() []Role {
	roles := make([]Role, 0, bits.OnesCount64(uint64(s)))
	for _, role := range Roles() {
		if s.Has(role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func (s RoleSet) known() bool {
	return s&^allRolesMask() == 0
}

func HasAnyPermissions(current PermissionSet, required PermissionSet) bool {
	return current&required != 0
}

func HasAllPermissions(current PermissionSet, required PermissionSet) bool {
	return current&required == required
}

func allPermissionsMask() PermissionSet {
	return PermissionSet(1)<<permissionCount - 1
}

func allRolesMask() RoleSet {
	return RoleSet(1)<<roleCount - 1
}
