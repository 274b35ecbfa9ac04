package onboarding

import (
	"context"
	"strings"
	"sync"
	"time"

	"kadra.org/internal/audit"
)

// In-memory fakes shared by the tests in this package.

type fakeDirectory struct {
	employees []Employee
}

func (d *fakeDirectory) Find(_ context.Context, id string) (*Employee, error) {
	for i := range d.employees {
		if d.employees[i].ID == id {
			e := d.employees[i]
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*Employee, error) {
	for i := range d.employees {
		if strings.EqualFold(d.employees[i].Email, email) {
			e := d.employees[i]
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

type fakeAttempts struct {
	mu      sync.Mutex
	records []IdentityAttempt
}

func (a *fakeAttempts) Record(_ context.Context, att *IdentityAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *att)
	return nil
}

func (a *fakeAttempts) CountFailuresSince(_ context.Context, email string, since time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.records {
		if r.Email == email && !r.Success && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]SetupToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[string]SetupToken)}
}

func (s *fakeTokens) Create(_ context.Context, t *SetupToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = *t
	return nil
}

func (s *fakeTokens) Find(_ context.Context, id string) (*SetupToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := t
	return &copied, nil
}

func (s *fakeTokens) SaveProgress(_ context.Context, t *SetupToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = *t
	return nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account // keyed by username
	sessions map[string]Session
	tokens   *fakeTokens

	activateErr error
}

func newFakeAccounts(tokens *fakeTokens) *fakeAccounts {
	return &fakeAccounts{
		accounts: make(map[string]Account),
		sessions: make(map[string]Session),
		tokens:   tokens,
	}
}

func (s *fakeAccounts) Find(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			copied := a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeAccounts) FindByEmployee(_ context.Context, employeeID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.EmployeeID == employeeID {
			copied := a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeAccounts) UsernameTaken(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[username]
	return ok, nil
}

func (s *fakeAccounts) Activate(ctx context.Context, rec ActivationRecord) (Account, error) {
	if s.activateErr != nil {
		return Account{}, s.activateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[rec.Username]; ok {
		return Account{}, ErrUsernameTaken
	}
	for _, a := range s.accounts {
		if a.EmployeeID == rec.EmployeeID {
			return Account{}, ErrAlreadyActivated
		}
	}
	token, ok := s.tokens.tokens[rec.TokenID]
	if !ok {
		return Account{}, ErrTokenInvalid
	}
	if token.Used {
		return Account{}, ErrTokenUsed
	}
	token.CompletePasswordSetup(rec.Now)
	s.tokens.tokens[rec.TokenID] = token

	account := Account{
		ID:              rec.AccountID,
		EmployeeID:      rec.EmployeeID,
		Username:        rec.Username,
		PasswordHash:    rec.PasswordHash,
		PasswordChanged: true,
		CreatedAt:       rec.Now,
		UpdatedAt:       rec.Now,
	}
	s.accounts[rec.Username] = account
	s.sessions[rec.Session.ID] = rec.Session
	return account, nil
}

func (s *fakeAccounts) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e audit.Entry) (audit.Entry, error) {
	finalized, err := audit.Finalize(e, time.Now())
	if err != nil {
		return audit.Entry{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, finalized)
	return finalized, nil
}

func (r *fakeRecorder) byAction(action string) []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Entry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	fail  error
}

func (m *fakeMailer) Send(to, subject, html, text string) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}
