package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"kadra.org/internal/audit"
)

type activateFixture struct {
	svc       *Service
	activator *Activator
	tokens    *fakeTokens
	accounts  *fakeAccounts
	recorder  *fakeRecorder
	mailer    *fakeMailer
}

func newActivateFixture(t *testing.T, opts ...ActivatorOption) *activateFixture {
	t.Helper()
	attempts := &fakeAttempts{}
	tokens := newFakeTokens()
	accounts := newFakeAccounts(tokens)
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{}
	directory := &fakeDirectory{employees: []Employee{testEmployee()}}

	svc, err := NewService(directory, attempts, tokens, recorder, testSecret)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	opts = append([]ActivatorOption{WithMailer(mailer)}, opts...)
	activator, err := NewActivator(directory, tokens, accounts, recorder, testSecret, opts...)
	if err != nil {
		t.Fatalf("NewActivator: %v", err)
	}
	return &activateFixture{svc: svc, activator: activator, tokens: tokens, accounts: accounts, recorder: recorder, mailer: mailer}
}

func (f *activateFixture) verifiedBearer(t *testing.T) string {
	t.Helper()
	res, err := f.svc.Verify(context.Background(), "alice@co.com", "+15550001111", RequestMeta{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return res.Bearer
}

func TestOnboardingEndToEnd(t *testing.T) {
	f := newActivateFixture(t)
	ctx := context.Background()
	bearer := f.verifiedBearer(t)

	state, err := f.activator.Resume(ctx, bearer)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.CurrentStep != "PHONE_AUTH" {
		t.Fatalf("initial step = %s", state.CurrentStep)
	}

	state, err = f.activator.ConfirmPhoneAuth(ctx, bearer)
	if err != nil {
		t.Fatalf("ConfirmPhoneAuth: %v", err)
	}
	if state.CurrentStep != "USERNAME_GENERATION" {
		t.Fatalf("step after phone auth = %s", state.CurrentStep)
	}

	state, err = f.activator.ChooseUsername(ctx, bearer)
	if err != nil {
		t.Fatalf("ChooseUsername: %v", err)
	}
	if state.ChosenUsername != "alice.doe" {
		t.Fatalf("chosen username = %q, want alice.doe", state.ChosenUsername)
	}
	if state.CurrentStep != "PASSWORD_SETUP" {
		t.Fatalf("step after username = %s", state.CurrentStep)
	}

	res, err := f.activator.Activate(ctx, bearer, "alice.doe", "Secur3!Pass", "Secur3!Pass", RequestMeta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if res.Account.Username != "alice.doe" || !res.Account.PasswordChanged {
		t.Fatalf("unexpected account: %+v", res.Account)
	}
	if res.Account.PasswordHash == "Secur3!Pass" {
		t.Fatal("plaintext password stored")
	}
	if res.SessionToken == "" {
		t.Fatal("expected a session credential")
	}

	// The originating token is terminally used.
	var stored SetupToken
	for _, tok := range f.tokens.tokens {
		stored = tok
	}
	if !stored.Used || stored.CurrentStep() != StepCompleted {
		t.Fatalf("token not terminated: %+v", stored)
	}

	if got := f.recorder.byAction(audit.ActionAccountActivated); len(got) != 0 {
		// The activation entry is written inside the store transaction, not
		// through the recorder.
		t.Fatalf("activation audit must go through the transactional store, got %d recorder entries", len(got))
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0] != "alice@co.com" {
		t.Fatalf("expected activation email to alice@co.com, got %v", f.mailer.sent)
	}

	// Resuming with the consumed token now fails.
	if _, err := f.activator.Resume(ctx, bearer); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("expected ErrTokenUsed after activation, got %v", err)
	}
}

func TestActivatePasswordMismatchCreatesNothing(t *testing.T) {
	f := newActivateFixture(t)
	bearer := f.verifiedBearer(t)

	before := f.accounts.count()
	_, err := f.activator.Activate(context.Background(), bearer, "alice.doe", "Secur3!Pass", "Different1!", RequestMeta{})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if f.accounts.count() != before {
		t.Fatal("account count changed on password mismatch")
	}
}

func TestActivateWeakPasswordListsEveryRule(t *testing.T) {
	f := newActivateFixture(t)
	bearer := f.verifiedBearer(t)

	_, err := f.activator.Activate(context.Background(), bearer, "alice.doe", "short", "short", RequestMeta{})
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected WeakPasswordError, got %v", err)
	}
	if len(weak.Violations) < 4 {
		t.Fatalf("expected length, uppercase, digit, and special violations together, got %v", weak.Violations)
	}
	if f.accounts.count() != 0 {
		t.Fatal("weak password must not create an account")
	}
}

func TestActivateUsernameTaken(t *testing.T) {
	f := newActivateFixture(t)
	bearer := f.verifiedBearer(t)
	f.accounts.accounts["alice.doe"] = Account{ID: "other", EmployeeID: "emp-9", Username: "alice.doe"}

	_, err := f.activator.Activate(context.Background(), bearer, "alice.doe", "Secur3!Pass", "Secur3!Pass", RequestMeta{})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestActivateRejectsForeignAndExpiredBearers(t *testing.T) {
	f := newActivateFixture(t)

	if _, err := f.activator.Activate(context.Background(), "garbage", "u", "Secur3!Pass", "Secur3!Pass", RequestMeta{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for malformed bearer, got %v", err)
	}

	// A structurally valid bearer pointing at a token that does not exist.
	now := time.Now().UTC()
	raw, err := signSetupCredential(testSecret, "emp-1", "alice@co.com", "missing-token", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := f.activator.Activate(context.Background(), raw, "u", "Secur3!Pass", "Secur3!Pass", RequestMeta{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestActivateExpiredToken(t *testing.T) {
	attempts := &fakeAttempts{}
	tokens := newFakeTokens()
	accounts := newFakeAccounts(tokens)
	recorder := &fakeRecorder{}
	directory := &fakeDirectory{employees: []Employee{testEmployee()}}

	issuedAt := time.Now().UTC()
	svc, _ := NewService(directory, attempts, tokens, recorder, testSecret)
	res, err := svc.Verify(context.Background(), "alice@co.com", "+15550001111", RequestMeta{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// An activator whose clock sits past the token expiry but inside no
	// bearer-validity margin does not exist: the bearer expires with the
	// token. Nudge the clock to just before bearer expiry to exercise the
	// token-expiry branch alone.
	late := func() time.Time { return issuedAt.Add(SetupTokenTTL - time.Nanosecond) }
	activator, _ := NewActivator(directory, tokens, accounts, recorder, testSecret, WithActivatorClock(late))

	stored := tokens.tokens[res.Token.ID]
	stored.ExpiresAt = issuedAt.Add(time.Minute)
	tokens.tokens[res.Token.ID] = stored

	_, err = activator.Activate(context.Background(), res.Bearer, "alice.doe", "Secur3!Pass", "Secur3!Pass", RequestMeta{})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestActivateMailFailureDoesNotFailActivation(t *testing.T) {
	f := newActivateFixture(t)
	f.mailer.fail = errors.New("smtp down")
	bearer := f.verifiedBearer(t)

	res, err := f.activator.Activate(context.Background(), bearer, "alice.doe", "Secur3!Pass", "Secur3!Pass", RequestMeta{})
	if err != nil {
		t.Fatalf("Activate must not fail on mailer error: %v", err)
	}
	if res.Account.Username != "alice.doe" {
		t.Fatalf("unexpected account: %+v", res.Account)
	}
}

func TestResumeAfterPartialProgress(t *testing.T) {
	f := newActivateFixture(t)
	ctx := context.Background()
	bearer := f.verifiedBearer(t)

	if _, err := f.activator.ConfirmPhoneAuth(ctx, bearer); err != nil {
		t.Fatalf("ConfirmPhoneAuth: %v", err)
	}

	// Simulate the user coming back later with the same credential.
	state, err := f.activator.Resume(ctx, bearer)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.CurrentStep != "USERNAME_GENERATION" {
		t.Fatalf("resumed step = %s, want USERNAME_GENERATION", state.CurrentStep)
	}
}
