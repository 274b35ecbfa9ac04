package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/ids"
	"kadra.org/internal/obs"
	"kadra.org/internal/rbac"
)

// Activator drives a setup token through its steps and performs the final
// account activation. Every operation is keyed by the bearer credential
// issued at verification, which is how a user who closed the browser
// mid-flow resumes: the server derives the next step from the token's flags,
// no separate session store involved.
type Activator struct {
	directory  Directory
	tokens     TokenStore
	accounts   AccountStore
	generator  *Generator
	audit      audit.Recorder
	mailer     Mailer
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// ActivatorOption configures Activator behavior.
type ActivatorOption func(*Activator)

// WithActivatorClock overrides the time source (useful for tests).
func WithActivatorClock(fn func() time.Time) ActivatorOption {
	return func(a *Activator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithSessionTTL overrides the session credential lifetime.
func WithSessionTTL(ttl time.Duration) ActivatorOption {
	return func(a *Activator) {
		if ttl > 0 {
			a.sessionTTL = ttl
		}
	}
}

// WithMailer attaches a best-effort activation mailer.
func WithMailer(m Mailer) ActivatorOption {
	return func(a *Activator) { a.mailer = m }
}

// NewActivator constructs the activation service.
func NewActivator(directory Directory, tokens TokenStore, accounts AccountStore, recorder audit.Recorder, secret []byte, opts ...ActivatorOption) (*Activator, error) {
	if directory == nil || tokens == nil || accounts == nil || recorder == nil {
		return nil, errors.New("onboarding: directory, token store, account store, and audit recorder are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("onboarding: signing secret is required")
	}
	gen, err := NewGenerator(accounts)
	if err != nil {
		return nil, err
	}
	a := &Activator{
		directory:  directory,
		tokens:     tokens,
		accounts:   accounts,
		generator:  gen,
		audit:      recorder,
		secret:     secret,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// resolve validates the bearer and loads its setup token, distinguishing
// the lifecycle violations from each other.
func (a *Activator) resolve(ctx context.Context, bearer string) (*SetupClaims, *SetupToken, error) {
	claims, err := parseSetupCredential(a.secret, bearer, a.now)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	token, err := a.tokens.Find(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}
	if token.EmployeeID != claims.Subject {
		return nil, nil, ErrTokenInvalid
	}
	if token.Used {
		return nil, nil, ErrTokenUsed
	}
	if !a.now().Before(token.ExpiresAt) {
		return nil, nil, ErrTokenExpired
	}
	return claims, token, nil
}

// ResumeState describes where a returning user should continue.
type ResumeState struct {
	EmployeeID     string    `json:"employee_id"`
	CurrentStep    string    `json:"current_step"`
	ChosenUsername string    `json:"chosen_username,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Resume reports the next step for the bearer's setup token.
func (a *Activator) Resume(ctx context.Context, bearer string) (ResumeState, error) {
	_, token, err := a.resolve(ctx, bearer)
	if err != nil {
		return ResumeState{}, err
	}
	return ResumeState{
		EmployeeID:     token.EmployeeID,
		CurrentStep:    token.CurrentStep().String(),
		ChosenUsername: token.ChosenUsername,
		ExpiresAt:      token.ExpiresAt,
	}, nil
}

// ConfirmPhoneAuth completes the first onboarding step. Idempotent.
func (a *Activator) ConfirmPhoneAuth(ctx context.Context, bearer string) (ResumeState, error) {
	_, token, err := a.resolve(ctx, bearer)
	if err != nil {
		return ResumeState{}, err
	}
	if !token.PhoneAuthDone {
		token.CompletePhoneAuth()
		if err := a.tokens.SaveProgress(ctx, token); err != nil {
			return ResumeState{}, err
		}
	}
	return ResumeState{
		EmployeeID:  token.EmployeeID,
		CurrentStep: token.CurrentStep().String(),
		ExpiresAt:   token.ExpiresAt,
	}, nil
}

// ChooseUsername generates a unique handle from the employee's name and
// completes the username step. Re-invoking returns the already chosen
// username without generating a new one.
func (a *Activator) ChooseUsername(ctx context.Context, bearer string) (ResumeState, error) {
	claims, token, err := a.resolve(ctx, bearer)
	if err != nil {
		return ResumeState{}, err
	}
	if !token.UsernameDone {
		employee, err := a.directory.Find(ctx, claims.Subject)
		if err != nil {
			return ResumeState{}, err
		}
		username, err := a.generator.Generate(ctx, employee.FirstName, employee.LastName)
		if err != nil {
			return ResumeState{}, err
		}
		token.CompleteUsernameGeneration(username)
		if err := a.tokens.SaveProgress(ctx, token); err != nil {
			return ResumeState{}, err
		}
	}
	return ResumeState{
		EmployeeID:     token.EmployeeID,
		CurrentStep:    token.CurrentStep().String(),
		ChosenUsername: token.ChosenUsername,
		ExpiresAt:      token.ExpiresAt,
	}, nil
}

// ActivationResult is returned on successful account activation.
type ActivationResult struct {
	Account      Account
	SessionToken string
}

// Activate consumes a valid setup token plus the chosen credentials and
// creates the durable account. All writes happen in one transaction through
// AccountStore.Activate; a half-created account is never observable. The
// activation email is dispatched after commit and its failure is logged,
// never fatal.
func (a *Activator) Activate(ctx context.Context, bearer, username, password, confirmPassword string, meta RequestMeta) (ActivationResult, error) {
	claims, token, err := a.resolve(ctx, bearer)
	if err != nil {
		return ActivationResult{}, err
	}
	if password != confirmPassword {
		return ActivationResult{}, ErrPasswordMismatch
	}
	if violations := ValidatePassword(password); len(violations) > 0 {
		return ActivationResult{}, &WeakPasswordError{Violations: violations}
	}
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return ActivationResult{}, ErrInvalidInput
	}
	taken, err := a.accounts.UsernameTaken(ctx, username)
	if err != nil {
		return ActivationResult{}, err
	}
	if taken {
		return ActivationResult{}, ErrUsernameTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return ActivationResult{}, err
	}

	now := a.now().UTC()
	accountID := ids.New()
	raw, session, err := newSessionToken(accountID, now, a.sessionTTL)
	if err != nil {
		return ActivationResult{}, err
	}

	entry, err := audit.Finalize(audit.Entry{
		Action:       audit.ActionAccountActivated,
		TargetID:     accountID,
		ResourceType: "account",
		ResourceID:   accountID,
		Details: map[string]any{
			"event":       "account activation completed",
			"employee_id": claims.Subject,
			"username":    username,
		},
		IP: meta.IP,
	}, now)
	if err != nil {
		return ActivationResult{}, err
	}

	account, err := a.accounts.Activate(ctx, ActivationRecord{
		AccountID:    accountID,
		EmployeeID:   claims.Subject,
		Username:     username,
		PasswordHash: hash,
		TokenID:      token.ID,
		BaseRole:     string(rbac.RoleEmployee),
		Session:      session,
		Audit:        entry,
		Now:          now,
	})
	if err != nil {
		return ActivationResult{}, err
	}
	obs.RecordActivation()

	a.sendActivationEmail(claims.EmployeeEmail, username)

	return ActivationResult{Account: account, SessionToken: raw}, nil
}

func (a *Activator) sendActivationEmail(to, username string) {
	if a.mailer == nil || to == "" {
		return
	}
	subject := "Your account is ready"
	text := fmt.Sprintf("Your account %s has been activated. You can now sign in to the HR portal.", username)
	html := fmt.Sprintf("<p>Your account <strong>%s</strong> has been activated. You can now sign in to the HR portal.</p>", username)
	if err := a.mailer.Send(to, subject, html, text); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "activation email delivery failed",
			"to":    to,
			"error": err.Error(),
		})
	}
}
