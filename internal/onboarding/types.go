package onboarding

import (
	"context"
	"time"
)

// Employee is a directory record sourced from the HR employee registry.
type Employee struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Department  string    `json:"department,omitempty"`
	Designation string    `json:"designation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Directory exposes employee lookups. Implementations return ErrNotFound
// when no employee matches.
type Directory interface {
	Find(ctx context.Context, id string) (*Employee, error)
	FindByEmail(ctx context.Context, email string) (*Employee, error)
}

// IdentityAttempt is one immutable row per verification attempt.
type IdentityAttempt struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is the durable login identity created exactly once per employee.
// PasswordChanged reports that the user has set their own password, which is
// what activation means; it is distinct from setup-token usage.
type Account struct {
	ID              string    `json:"id"`
	EmployeeID      string    `json:"employee_id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	PasswordChanged bool      `json:"password_changed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Session is the persisted half of an opaque session credential. Only a
// SHA-256 digest of the secret is stored.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// RequestMeta carries requester attribution recorded on attempts and audit
// entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Mailer delivers onboarding email. Delivery is best effort: a send failure
// is logged and must never roll back account creation.
type Mailer interface {
	Send(to, subject, html, text string) error
}
