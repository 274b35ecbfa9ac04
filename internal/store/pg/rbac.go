package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"kadra.org/internal/rbac"
)

// GrantStore persists role grants. A partial unique index on
// (account_id, role) where is_active enforces single active grants even
// under concurrent inserts.
type GrantStore struct {
	db *sql.DB
}

var _ rbac.Store = (*GrantStore)(nil)

func (s *GrantStore) Insert(ctx context.Context, g *rbac.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_grants (id, account_id, role, granted_by, notes, expires_at, is_active, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, g.ID, g.AccountID, string(g.Role), nullIfEmpty(g.GrantedBy), nullIfEmpty(g.Notes),
		nullIfZero(g.ExpiresAt), g.IsActive, g.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return rbac.ErrDuplicateGrant
	}
	return err
}

func (s *GrantStore) Deactivate(ctx context.Context, accountID string, role rbac.Role, now time.Time) (rbac.Grant, error) {
	row := s.db.QueryRowContext(ctx, `
		update role_grants
		set is_active = false, deactivated_at = $3
		where account_id = $1 and role = $2 and is_active
		returning id, account_id, role, coalesce(granted_by,''), coalesce(notes,''), expires_at, is_active, created_at, deactivated_at
	`, accountID, string(role), now)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Grant{}, rbac.ErrNoSuchGrant
	}
	if err != nil {
		return rbac.Grant{}, err
	}
	return g, nil
}

// DeactivateByID is idempotent: a grant already deactivated by a concurrent
// sweep is not an error.
func (s *GrantStore) DeactivateByID(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update role_grants
		set is_active = false, deactivated_at = $2
		where id = $1 and is_active
	`, id, now)
	return err
}

func (s *GrantStore) ActiveGrants(ctx context.Context, accountID string) ([]rbac.Grant, error) {
	return s.list(ctx, `
		select id, account_id, role, coalesce(granted_by,''), coalesce(notes,''), expires_at, is_active, created_at, deactivated_at
		from role_grants
		where account_id = $1 and is_active
		order by created_at
	`, accountID)
}

func (s *GrantStore) ListExpired(ctx context.Context, now time.Time) ([]rbac.Grant, error) {
	return s.list(ctx, `
		select id, account_id, role, coalesce(granted_by,''), coalesce(notes,''), expires_at, is_active, created_at, deactivated_at
		from role_grants
		where is_active and expires_at is not null and expires_at <= $1
		order by expires_at
	`, now)
}

func (s *GrantStore) list(ctx context.Context, query string, args ...any) ([]rbac.Grant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (rbac.Grant, error) {
	var (
		g           rbac.Grant
		role        string
		expiresAt   sql.NullTime
		deactivated sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.AccountID, &role, &g.GrantedBy, &g.Notes, &expiresAt, &g.IsActive, &g.CreatedAt, &deactivated); err != nil {
		return rbac.Grant{}, err
	}
	g.Role = rbac.Role(role)
	if expiresAt.Valid {
		at := expiresAt.Time
		g.ExpiresAt = &at
	}
	if deactivated.Valid {
		at := deactivated.Time
		g.DeactivatedAt = &at
	}
	return g, nil
}
