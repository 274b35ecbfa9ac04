package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/ids"
	"kadra.org/internal/obs"
)

var (
	ErrInvalidInput   = errors.New("rbac: invalid input")
	ErrUnknownRole    = errors.New("rbac: unknown role")
	ErrDuplicateGrant = errors.New("rbac: an active grant for this role already exists")
	ErrNoSuchGrant    = errors.New("rbac: no active grant for this role")
)

// Grant associates an account with a role, optionally until ExpiresAt.
// Grants are never deleted; IsActive flips to false on revoke or expiry.
type Grant struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	Role          Role       `json:"role"`
	GrantedBy     string     `json:"granted_by,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// Store persists grants. Insert must fail with ErrDuplicateGrant when an
// active grant for the same (account, role) pair exists; backing storage
// enforces this with a partial unique index so two concurrent grants cannot
// both land.
type Store interface {
	Insert(ctx context.Context, g *Grant) error
	// Deactivate flips the active grant for (account, role) off and returns
	// it, or ErrNoSuchGrant.
	Deactivate(ctx context.Context, accountID string, role Role, now time.Time) (Grant, error)
	DeactivateByID(ctx context.Context, id string, now time.Time) error
	ActiveGrants(ctx context.Context, accountID string) ([]Grant, error)
	// ListExpired returns active grants whose expiry has passed.
	ListExpired(ctx context.Context, now time.Time) ([]Grant, error)
}

// Engine applies role mutations with audit snapshots around every change.
type Engine struct {
	store   Store
	catalog *Catalog
	audit   audit.Recorder
	now     func() time.Time
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs the role engine.
func NewEngine(store Store, catalog *Catalog, recorder audit.Recorder, opts ...Option) (*Engine, error) {
	if store == nil || catalog == nil || recorder == nil {
		return nil, errors.New("rbac: store, catalog, and audit recorder are required")
	}
	e := &Engine{store: store, catalog: catalog, audit: recorder, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the engine's role catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// ActiveRoles lists the account's currently granted roles.
func (e *Engine) ActiveRoles(ctx context.Context, accountID string) ([]Role, error) {
	grants, err := e.store.ActiveGrants(ctx, accountID)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, g.Role)
	}
	return roles, nil
}

// snapshot captures the account's role-name set and permission count for
// before/after audit states.
func (e *Engine) snapshot(ctx context.Context, accountID string) (map[string]any, error) {
	grants, err := e.store.ActiveGrants(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(grants))
	roles := make([]Role, 0, len(grants))
	for _, g := range grants {
		names = append(names, string(g.Role))
		roles = append(roles, g.Role)
	}
	sort.Strings(names)
	return map[string]any{
		"roles":            names,
		"permission_count": len(e.catalog.PermissionSet(roles)),
	}, nil
}

// Grant creates an active grant for (account, role). Rejected with
// ErrDuplicateGrant if one already exists. The audit entry captures role set
// and permission count before and after.
func (e *Engine) Grant(ctx context.Context, accountID string, roleName string, expiresAt *time.Time, actorID, notes string) (Grant, error) {
	if accountID == "" {
		return Grant{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	role, ok := e.catalog.Parse(roleName)
	if !ok {
		return Grant{}, fmt.Errorf("%w: %q", ErrUnknownRole, roleName)
	}
	now := e.now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return Grant{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	before, err := e.snapshot(ctx, accountID)
	if err != nil {
		return Grant{}, err
	}
	for _, name := range before["roles"].([]string) {
		if name == string(role) {
			return Grant{}, ErrDuplicateGrant
		}
	}

	grant := Grant{
		ID:        ids.New(),
		AccountID: accountID,
		Role:      role,
		GrantedBy: actorID,
		Notes:     notes,
		ExpiresAt: expiresAt,
		IsActive:  true,
		CreatedAt: now,
	}
	if err := e.store.Insert(ctx, &grant); err != nil {
		return Grant{}, err
	}

	after, err := e.snapshot(ctx, accountID)
	if err != nil {
		return Grant{}, err
	}
	if _, err := e.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionRoleGranted,
		ActorID:      actorID,
		TargetID:     accountID,
		ResourceType: "role_grant",
		ResourceID:   grant.ID,
		Details:      map[string]any{"role": string(role), "notes": notes},
		Before:       before,
		After:        after,
	}); err != nil {
		return Grant{}, err
	}
	obs.RecordGrantOp("grant")
	return grant, nil
}

// Revoke deactivates the active grant for (account, role). Rejected with
// ErrNoSuchGrant when none exists.
func (e *Engine) Revoke(ctx context.Context, accountID string, roleName string, actorID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	role, ok := e.catalog.Parse(roleName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, roleName)
	}

	before, err := e.snapshot(ctx, accountID)
	if err != nil {
		return err
	}
	grant, err := e.store.Deactivate(ctx, accountID, role, e.now().UTC())
	if err != nil {
		return err
	}
	after, err := e.snapshot(ctx, accountID)
	if err != nil {
		return err
	}
	if _, err := e.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionRoleRevoked,
		ActorID:      actorID,
		TargetID:     accountID,
		ResourceType: "role_grant",
		ResourceID:   grant.ID,
		Details:      map[string]any{"role": string(role)},
		Before:       before,
		After:        after,
	}); err != nil {
		return err
	}
	obs.RecordGrantOp("revoke")
	return nil
}

// SweepResult reports one expiry sweep run.
type SweepResult struct {
	ExpiredCount int `json:"expired_count"`
	ErrorCount   int `json:"error_count"`
}

// SweepExpired deactivates every active grant whose expiry has passed. Each
// grant is processed independently: a failure is logged and counted, never
// propagated, so a crashed sweep can simply be re-run.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) SweepResult {
	var result SweepResult
	expired, err := e.store.ListExpired(ctx, now)
	if err != nil {
		obs.LogEvent(map[string]any{"level": "error", "msg": "expiry sweep list failed", "error": err.Error()})
		result.ErrorCount++
		return result
	}
	for _, grant := range expired {
		if err := e.expireOne(ctx, grant, now); err != nil {
			obs.LogEvent(map[string]any{
				"level":    "error",
				"msg":      "expiry sweep failed for grant",
				"grant_id": grant.ID,
				"error":    err.Error(),
			})
			result.ErrorCount++
			continue
		}
		result.ExpiredCount++
	}
	obs.RecordSweep(result.ExpiredCount, result.ErrorCount)
	return result
}

func (e *Engine) expireOne(ctx context.Context, grant Grant, now time.Time) error {
	before, err := e.snapshot(ctx, grant.AccountID)
	if err != nil {
		return err
	}
	if err := e.store.DeactivateByID(ctx, grant.ID, now.UTC()); err != nil {
		return err
	}
	after, err := e.snapshot(ctx, grant.AccountID)
	if err != nil {
		return err
	}
	if _, err := e.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionRoleExpired,
		TargetID:     grant.AccountID,
		ResourceType: "role_grant",
		ResourceID:   grant.ID,
		Details:      map[string]any{"role": string(grant.Role), "reason": "automatic expiration"},
		Before:       before,
		After:        after,
	}); err != nil {
		return err
	}
	obs.RecordGrantOp("expire")
	return nil
}
