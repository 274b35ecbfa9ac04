package onboarding

import (
	"context"
	"errors"
	"strings"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/ids"
	"kadra.org/internal/obs"
)

// Service performs identity verification: the entry point of onboarding.
type Service struct {
	directory Directory
	attempts  AttemptStore
	tokens    TokenStore
	audit     audit.Recorder
	limiter   *Limiter
	secret    []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.limiter.now = fn
		}
	}
}

// WithTokenTTL overrides the setup token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// NewService constructs the identity verification service.
func NewService(directory Directory, attempts AttemptStore, tokens TokenStore, recorder audit.Recorder, secret []byte, opts ...ServiceOption) (*Service, error) {
	if directory == nil || attempts == nil || tokens == nil || recorder == nil {
		return nil, errors.New("onboarding: directory, attempt store, token store, and audit recorder are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("onboarding: signing secret is required")
	}
	s := &Service{
		directory: directory,
		attempts:  attempts,
		tokens:    tokens,
		audit:     recorder,
		limiter:   NewLimiter(attempts),
		secret:    secret,
		tokenTTL:  SetupTokenTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Limiter exposes the lockout tracker, mainly for status endpoints.
func (s *Service) Limiter() *Limiter { return s.limiter }

// VerifyResult is returned on successful identity verification.
type VerifyResult struct {
	Employee  Employee
	Token     SetupToken
	Bearer    string
	ExpiresAt time.Time
}

// Verify validates an email+phone pair against the employee directory.
// Lockout is evaluated before the phone comparison, so a correct phone
// submitted while locked still fails. Every attempt is recorded, and every
// denial produces an audit entry.
func (s *Service) Verify(ctx context.Context, email, phone string, meta RequestMeta) (VerifyResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	phone = strings.TrimSpace(phone)
	if email == "" || !strings.Contains(email, "@") || phone == "" {
		return VerifyResult{}, ErrInvalidInput
	}

	locked, err := s.limiter.IsLocked(ctx, email)
	if err != nil {
		return VerifyResult{}, err
	}
	if locked {
		if err := s.denied(ctx, email, phone, "locked", "", meta); err != nil {
			return VerifyResult{}, err
		}
		obs.RecordVerification("locked")
		return VerifyResult{}, ErrLockedOut
	}

	employee, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if derr := s.denied(ctx, email, phone, "email not found", "", meta); derr != nil {
				return VerifyResult{}, derr
			}
			obs.RecordVerification("not_found")
			return VerifyResult{}, ErrNotFound
		}
		return VerifyResult{}, err
	}

	if employee.Phone != phone {
		if err := s.denied(ctx, email, phone, "phone mismatch", employee.ID, meta); err != nil {
			return VerifyResult{}, err
		}
		obs.RecordVerification("mismatch")
		failures, err := s.limiter.RecentFailures(ctx, email)
		if err != nil {
			return VerifyResult{}, err
		}
		remaining := LockoutThreshold - failures
		if remaining < 0 {
			remaining = 0
		}
		return VerifyResult{}, &MismatchError{AttemptsRemaining: remaining}
	}

	now := s.now().UTC()
	if err := s.attempts.Record(ctx, &IdentityAttempt{
		ID:        ids.New(),
		Email:     email,
		Phone:     phone,
		Success:   true,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}); err != nil {
		return VerifyResult{}, err
	}

	token := SetupToken{
		ID:         ids.New(),
		EmployeeID: employee.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.tokenTTL),
	}
	if err := s.tokens.Create(ctx, &token); err != nil {
		return VerifyResult{}, err
	}

	if _, err := s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionIdentityVerified,
		ResourceType: "setup_token",
		ResourceID:   token.ID,
		Details:      map[string]any{"email": email, "employee_id": employee.ID},
		IP:           meta.IP,
	}); err != nil {
		return VerifyResult{}, err
	}
	obs.RecordVerification("success")

	bearer, err := signSetupCredential(s.secret, employee.ID, email, token.ID, now, token.ExpiresAt)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Employee:  *employee,
		Token:     token,
		Bearer:    bearer,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// denied records a failed attempt and its ACCESS_DENIED audit entry. A
// denial without a ledger row or audit trail is a defect, so failures here
// propagate.
func (s *Service) denied(ctx context.Context, email, phone, reason, employeeID string, meta RequestMeta) error {
	if err := s.attempts.Record(ctx, &IdentityAttempt{
		ID:        ids.New(),
		Email:     email,
		Phone:     phone,
		Success:   false,
		Reason:    reason,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return err
	}
	details := map[string]any{"email": email, "reason": reason}
	if employeeID != "" {
		details["employee_id"] = employeeID
	}
	_, err := s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionAccessDenied,
		ResourceType: "employee",
		ResourceID:   employeeID,
		Details:      details,
		IP:           meta.IP,
	})
	return err
}
