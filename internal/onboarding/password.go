package onboarding

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const passwordSpecials = "!@#$%^&*"

// Password strength rule descriptions, reported verbatim to users.
const (
	ruleMinLength = "at least 8 characters"
	ruleUpper     = "at least one uppercase letter"
	ruleLower     = "at least one lowercase letter"
	ruleDigit     = "at least one digit"
	ruleSpecial   = "at least one special character (" + passwordSpecials + ")"
)

// ValidatePassword checks every strength rule and returns all the unmet ones
// at once, never just the first.
func ValidatePassword(password string) []string {
	var violations []string
	if len(password) < 8 {
		violations = append(violations, ruleMinLength)
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !upper {
		violations = append(violations, ruleUpper)
	}
	if !lower {
		violations = append(violations, ruleLower)
	}
	if !digit {
		violations = append(violations, ruleDigit)
	}
	if !special {
		violations = append(violations, ruleSpecial)
	}
	return violations
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("onboarding: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored digest.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("onboarding: password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
