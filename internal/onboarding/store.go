package onboarding

import (
	"context"
	"time"

	"kadra.org/internal/audit"
)

// AttemptStore persists the identity attempt ledger. Rows are append-only.
type AttemptStore interface {
	Record(ctx context.Context, a *IdentityAttempt) error
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
}

// TokenStore persists setup tokens.
type TokenStore interface {
	Create(ctx context.Context, t *SetupToken) error
	Find(ctx context.Context, id string) (*SetupToken, error)
	// SaveProgress persists the completion flags and chosen username of an
	// unused token.
	SaveProgress(ctx context.Context, t *SetupToken) error
}

// ActivationRecord bundles every write account activation performs. Stores
// must apply it in a single transaction: a failure anywhere rolls back the
// account, the role grant, the token terminal state, the session, and the
// audit entry together.
type ActivationRecord struct {
	AccountID    string
	EmployeeID   string
	Username     string
	PasswordHash string
	TokenID      string
	BaseRole     string
	Session      Session
	Audit        audit.Entry
	Now          time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmployee(ctx context.Context, employeeID string) (*Account, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	// Activate atomically creates the account, grants the base role, marks
	// the setup token used, stores the session, and appends the audit entry.
	// It returns ErrTokenUsed when the token was consumed concurrently,
	// ErrUsernameTaken on a username collision, and ErrAlreadyActivated when
	// the employee already has an account.
	Activate(ctx context.Context, rec ActivationRecord) (Account, error)
}

// SessionStore resolves persisted sessions for authenticated calls.
type SessionStore interface {
	Find(ctx context.Context, id string) (*Session, error)
}
