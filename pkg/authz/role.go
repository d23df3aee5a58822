package authz

import (
	"fmt"
	"strings"

	cerrors "github.com/porthorian/cityauthz/pkg/errors"
)

// Role identifies the class of an authenticated principal. A principal carries exactly one role.
type Role uint8

const (
	RoleAdmin Role = iota
	RoleManager
	RoleUser
	RoleMayor
	RoleBuildingManager
	RoleCitizen

	roleCount
)

var roleTokens = [roleCount]string{
	RoleAdmin:           "admin",
	RoleManager:         "manager",
	RoleUser:            "user",
	RoleMayor:           "mayor",
	RoleBuildingManager: "building_manager",
	RoleCitizen:         "citizen",
}

func Roles() []Role {
	roles := make([]Role, roleCount)
	for i := range roles {
		roles[i] = Role(i)
	}
	return roles
}

func (r Role) Valid() bool {
	return r < roleCount
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", uint8(r))
	}
	return roleTokens[r]
}

func (r Role) bit() RoleSet {
	if !r.Valid() {
		return 0
	}
	return RoleSet(1) << r
}

// ParseRole accepts the snake_case token, ignoring case and surrounding space.
// Dashes are treated as underscores so "building-manager" parses too.
func ParseRole(token string) (Role, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(token)), "-", "_")
	for i, candidate := range roleTokens {
		if candidate == normalized {
			return Role(i), nil
		}
	}
	return 0, cerrors.Wrap(cerrors.CodeUnknownRole, fmt.Sprintf("authz: unknown role %q", token), nil)
}
