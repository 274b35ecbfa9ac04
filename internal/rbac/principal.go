package rbac

import "context"

// Principal is an authenticated account with resolved roles and permissions.
type Principal struct {
	AccountID   string
	Roles       []Role
	Permissions map[string]struct{}
}

// NewPrincipal resolves a permission set for the account's roles.
func NewPrincipal(accountID string, roles []Role, catalog *Catalog) Principal {
	return Principal{
		AccountID:   accountID,
		Roles:       roles,
		Permissions: catalog.PermissionSet(roles),
	}
}

// HasPermission reports whether the principal can execute the action
// identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// HasRole reports whether the principal holds the role.
func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
