package onboarding

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput     = errors.New("onboarding: invalid input")
	ErrNotFound         = errors.New("onboarding: employee not found")
	ErrLockedOut        = errors.New("onboarding: account temporarily locked after repeated failed attempts, please contact HR")
	ErrUnauthorized     = errors.New("onboarding: unauthorized")
	ErrTokenInvalid     = errors.New("onboarding: setup token invalid")
	ErrTokenExpired     = errors.New("onboarding: setup token expired")
	ErrTokenUsed        = errors.New("onboarding: setup token already used")
	ErrPasswordMismatch = errors.New("onboarding: passwords do not match")
	ErrUsernameTaken    = errors.New("onboarding: username already taken")
	ErrAlreadyActivated = errors.New("onboarding: employee already has an account")
)

// MismatchError reports a failed phone comparison along with how many
// attempts remain before lockout.
type MismatchError struct {
	AttemptsRemaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("onboarding: phone number does not match our records (%d attempts remaining)", e.AttemptsRemaining)
}

// WeakPasswordError carries every unmet strength rule at once so the caller
// can fix all of them in a single round trip.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return "onboarding: password too weak: " + strings.Join(e.Violations, "; ")
}
