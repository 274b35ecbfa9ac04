// Package rbac implements role grants with optional expiry and the
// permission catalog attached to each role.
package rbac

import "strings"

// Role is a named permission bundle.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

// Permission keys.
const (
	PermProfileRead   = "profile.read"
	PermLeaveRequest  = "leave.request"
	PermLeaveApprove  = "leave.approve"
	PermTeamRead      = "team.read"
	PermEmployeeWrite = "employee.write"
	PermRoleManage    = "role.manage"
	PermAuditRead     = "audit.read"
)

// Catalog is the ordered role hierarchy with per-role permissions. It is
// built once at process start and read-only afterwards.
type Catalog struct {
	order []Role
	perms map[Role][]string
}

// NewCatalog constructs the built-in role catalog. Roles are ordered from
// least to most privileged; each role includes the permissions of the ones
// below it.
func NewCatalog() *Catalog {
	c := &Catalog{
		order: []Role{RoleEmployee, RoleManager, RoleHR, RoleAdmin},
		perms: make(map[Role][]string),
	}
	c.perms[RoleEmployee] = []string{PermProfileRead, PermLeaveRequest}
	c.perms[RoleManager] = append(append([]string{}, c.perms[RoleEmployee]...), PermTeamRead, PermLeaveApprove)
	c.perms[RoleHR] = append(append([]string{}, c.perms[RoleManager]...), PermEmployeeWrite, PermAuditRead)
	c.perms[RoleAdmin] = append(append([]string{}, c.perms[RoleHR]...), PermRoleManage)
	return c
}

// Parse normalizes a role name and reports whether the catalog knows it.
func (c *Catalog) Parse(name string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(name)))
	_, ok := c.perms[role]
	return role, ok
}

// Level returns the role's position in the hierarchy, 0 being the least
// privileged. Unknown roles return -1.
func (c *Catalog) Level(role Role) int {
	for i, r := range c.order {
		if r == role {
			return i
		}
	}
	return -1
}

// Permissions returns a copy of the role's permission keys.
func (c *Catalog) Permissions(role Role) []string {
	perms, ok := c.perms[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// PermissionSet resolves the union of permissions across roles.
func (c *Catalog) PermissionSet(roles []Role) map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range c.perms[role] {
			set[p] = struct{}{}
		}
	}
	return set
}

// Roles lists the catalog roles in hierarchy order.
func (c *Catalog) Roles() []Role {
	out := make([]Role, len(c.order))
	copy(out, c.order)
	return out
}
