package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/ids"
	"kadra.org/internal/onboarding"
)

// EmployeeDirectory reads the HR employee registry.
type EmployeeDirectory struct {
	db *sql.DB
}

var _ onboarding.Directory = (*EmployeeDirectory)(nil)

func (d *EmployeeDirectory) Find(ctx context.Context, id string) (*onboarding.Employee, error) {
	return d.scanOne(ctx, `
		select id, email, phone, first_name, last_name, coalesce(department,''), coalesce(designation,''), created_at
		from employees
		where id = $1
	`, id)
}

func (d *EmployeeDirectory) FindByEmail(ctx context.Context, email string) (*onboarding.Employee, error) {
	return d.scanOne(ctx, `
		select id, email, phone, first_name, last_name, coalesce(department,''), coalesce(designation,''), created_at
		from employees
		where lower(email) = lower($1)
	`, email)
}

func (d *EmployeeDirectory) scanOne(ctx context.Context, query string, arg any) (*onboarding.Employee, error) {
	var e onboarding.Employee
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&e.ID, &e.Email, &e.Phone, &e.FirstName, &e.LastName, &e.Department, &e.Designation, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AttemptLedger appends verification attempts. Rows are never updated.
type AttemptLedger struct {
	db *sql.DB
}

var _ onboarding.AttemptStore = (*AttemptLedger)(nil)

func (l *AttemptLedger) Record(ctx context.Context, a *onboarding.IdentityAttempt) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := l.db.ExecContext(ctx, `
		insert into identity_attempts (id, email, phone, success, reason, ip, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Email, a.Phone, a.Success, nullIfEmpty(a.Reason), nullIfEmpty(a.IP), nullIfEmpty(a.UserAgent), a.CreatedAt)
	return err
}

func (l *AttemptLedger) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		select count(*) from identity_attempts
		where lower(email) = lower($1) and success = false and created_at >= $2
	`, email, since).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetupTokenStore persists setup tokens.
type SetupTokenStore struct {
	db *sql.DB
}

var _ onboarding.TokenStore = (*SetupTokenStore)(nil)

func (s *SetupTokenStore) Create(ctx context.Context, t *onboarding.SetupToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into setup_tokens (id, employee_id, created_at, expires_at, used, phone_auth_done, username_done, chosen_username, password_done)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.EmployeeID, t.CreatedAt, t.ExpiresAt, t.Used, t.PhoneAuthDone, t.UsernameDone, nullIfEmpty(t.ChosenUsername), t.PasswordDone)
	return err
}

func (s *SetupTokenStore) Find(ctx context.Context, id string) (*onboarding.SetupToken, error) {
	var (
		t        onboarding.SetupToken
		usedAt   sql.NullTime
		username sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, employee_id, created_at, expires_at, used, used_at, phone_auth_done, username_done, chosen_username, password_done
		from setup_tokens
		where id = $1
	`, id).Scan(&t.ID, &t.EmployeeID, &t.CreatedAt, &t.ExpiresAt, &t.Used, &usedAt, &t.PhoneAuthDone, &t.UsernameDone, &username, &t.PasswordDone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		at := usedAt.Time
		t.UsedAt = &at
	}
	if username.Valid {
		t.ChosenUsername = username.String
	}
	return &t, nil
}

// SaveProgress writes completion flags. The used = false guard keeps a
// terminated token immutable even if two requests race.
func (s *SetupTokenStore) SaveProgress(ctx context.Context, t *onboarding.SetupToken) error {
	res, err := s.db.ExecContext(ctx, `
		update setup_tokens
		set phone_auth_done = $2, username_done = $3, chosen_username = $4, password_done = $5
		where id = $1 and used = false
	`, t.ID, t.PhoneAuthDone, t.UsernameDone, nullIfEmpty(t.ChosenUsername), t.PasswordDone)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return onboarding.ErrTokenUsed
	}
	return nil
}

// AccountStore persists accounts and performs the activation transaction.
type AccountStore struct {
	db *sql.DB
}

var _ onboarding.AccountStore = (*AccountStore)(nil)

func (s *AccountStore) Find(ctx context.Context, id string) (*onboarding.Account, error) {
	return s.scanOne(ctx, `
		select id, employee_id, username, password_hash, password_changed, created_at, updated_at
		from accounts
		where id = $1
	`, id)
}

func (s *AccountStore) FindByEmployee(ctx context.Context, employeeID string) (*onboarding.Account, error) {
	return s.scanOne(ctx, `
		select id, employee_id, username, password_hash, password_changed, created_at, updated_at
		from accounts
		where employee_id = $1
	`, employeeID)
}

func (s *AccountStore) scanOne(ctx context.Context, query string, arg any) (*onboarding.Account, error) {
	var a onboarding.Account
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.EmployeeID, &a.Username, &a.PasswordHash, &a.PasswordChanged, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AccountStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from accounts where username = $1)
	`, username).Scan(&taken)
	if err != nil {
		return false, err
	}
	return taken, nil
}

// Activate creates the account, grants the base role, terminates the setup
// token, stores the session, and appends the audit entry in one transaction.
// The token update guards on used = false so a concurrently consumed token
// rolls the whole activation back with ErrTokenUsed.
func (s *AccountStore) Activate(ctx context.Context, rec onboarding.ActivationRecord) (onboarding.Account, error) {
	entry, err := audit.Finalize(rec.Audit, rec.Now)
	if err != nil {
		return onboarding.Account{}, err
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return onboarding.Account{}, fmt.Errorf("marshal audit details: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return onboarding.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	account := onboarding.Account{
		ID:              rec.AccountID,
		EmployeeID:      rec.EmployeeID,
		Username:        rec.Username,
		PasswordHash:    rec.PasswordHash,
		PasswordChanged: true,
		CreatedAt:       rec.Now,
		UpdatedAt:       rec.Now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into accounts (id, employee_id, username, password_hash, password_changed, created_at, updated_at)
		values ($1, $2, $3, $4, true, $5, $5)
	`, account.ID, account.EmployeeID, account.Username, account.PasswordHash, rec.Now); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			if pgErr.ConstraintName == "accounts_username_key" {
				return onboarding.Account{}, onboarding.ErrUsernameTaken
			}
			return onboarding.Account{}, onboarding.ErrAlreadyActivated
		}
		return onboarding.Account{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into role_grants (id, account_id, role, is_active, created_at)
		values ($1, $2, $3, true, $4)
	`, ids.New(), account.ID, rec.BaseRole, rec.Now); err != nil {
		return onboarding.Account{}, err
	}

	res, err := tx.ExecContext(ctx, `
		update setup_tokens
		set used = true, used_at = $2, password_done = true
		where id = $1 and used = false
	`, rec.TokenID, rec.Now)
	if err != nil {
		return onboarding.Account{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return onboarding.Account{}, err
	}
	if n == 0 {
		return onboarding.Account{}, onboarding.ErrTokenUsed
	}

	if _, err := tx.ExecContext(ctx, `
		insert into sessions (id, account_id, token_hash, expires_at, created_at, revoked)
		values ($1, $2, $3, $4, $5, false)
	`, rec.Session.ID, account.ID, rec.Session.TokenHash, rec.Session.ExpiresAt, rec.Session.CreatedAt); err != nil {
		return onboarding.Account{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into audit_log (id, action, actor_id, target_id, resource_type, resource_id, details, ip, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.Action, nullIfEmpty(entry.ActorID), nullIfEmpty(entry.TargetID),
		entry.ResourceType, nullIfEmpty(entry.ResourceID), details, nullIfEmpty(entry.IP), entry.CreatedAt); err != nil {
		return onboarding.Account{}, err
	}

	if err := tx.Commit(); err != nil {
		return onboarding.Account{}, err
	}
	return account, nil
}

// SessionStore resolves persisted sessions.
type SessionStore struct {
	db *sql.DB
}

var _ onboarding.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Find(ctx context.Context, id string) (*onboarding.Session, error) {
	var sess onboarding.Session
	err := s.db.QueryRowContext(ctx, `
		select id, account_id, token_hash, expires_at, created_at, revoked
		from sessions
		where id = $1
	`, id).Scan(&sess.ID, &sess.AccountID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt, &sess.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
