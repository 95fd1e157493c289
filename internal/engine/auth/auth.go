// Package auth holds the role model and the credential primitives shared by
// the CLI and the HTTP API.
package auth

import (
	"fmt"
	"slices"

	"siteplan/internal/domain"
)

// Permission names an action a role may perform.
type Permission string

const (
	PermRead          Permission = "read"
	PermWriteSchedule Permission = "schedule.write"
	PermManageUsers   Permission = "users.manage"
	PermReadAudit     Permission = "audit.read"
)

var rolePermissions = map[domain.Role][]Permission{
	domain.RoleConstructionManager: {PermRead, PermWriteSchedule, PermManageUsers, PermReadAudit},
	domain.RoleManager:             {PermRead, PermWriteSchedule, PermReadAudit},
	domain.RoleViewer:              {PermRead},
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission Permission
	Role       domain.Role
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (role %s)", e.Permission, e.Role)
}

// Can reports whether role grants perm.
func Can(role domain.Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// Require returns a ForbiddenError unless the user's role grants perm.
func Require(u domain.User, perm Permission) error {
	if Can(u.Role, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm, Role: u.Role}
}

// Permissions lists what role grants, in a stable order.
func Permissions(role domain.Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
