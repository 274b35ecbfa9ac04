package onboarding

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kadra.org/internal/ids"
)

const issuer = "kadra"

// DefaultSessionTTL bounds session credentials issued on activation.
const DefaultSessionTTL = 12 * time.Hour

// ErrInvalidCredential indicates a bearer credential failed validation.
var ErrInvalidCredential = errors.New("onboarding: invalid credential")

// SetupClaims is the payload of the signed bearer credential issued after
// identity verification. It is verifiable without a database round trip, but
// the referenced setup token must still be loaded to check used/step state.
type SetupClaims struct {
	EmployeeEmail string `json:"employee_email"`
	TokenID       string `json:"token_id"`
	jwt.RegisteredClaims
}

// signSetupCredential signs an HS256 bearer bound to the setup token's
// lifetime. Subject carries the employee id.
func signSetupCredential(secret []byte, employeeID, email, tokenID string, issuedAt, expiresAt time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("onboarding: signing secret is not configured")
	}
	claims := SetupClaims{
		EmployeeEmail: email,
		TokenID:       tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   employeeID,
			IssuedAt:  jwt.NewNumericDate(issuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseSetupCredential verifies signature, issuer, and expiry against the
// provided clock and returns the claims.
func parseSetupCredential(secret []byte, raw string, now func() time.Time) (*SetupClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(secret) == 0 {
		return nil, ErrInvalidCredential
	}
	parsed, err := jwt.ParseWithClaims(raw, &SetupClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidCredential
		}
		return secret, nil
	}, jwt.WithTimeFunc(now), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*SetupClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.TokenID) == "" {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// newSessionToken mints an opaque "id.secret" credential for a freshly
// activated account. Only the SHA-256 digest of the secret is persisted.
func newSessionToken(accountID string, now time.Time, ttl time.Duration) (string, Session, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", Session{}, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	sess := Session{
		ID:        ids.New(),
		AccountID: accountID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	return sess.ID + "." + secret, sess, nil
}

// SplitSessionToken separates an opaque session credential into its id and
// secret halves.
func SplitSessionToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidCredential
	}
	return parts[0], parts[1], nil
}

// MatchesSessionHash compares a presented secret against the stored digest
// in constant time.
func MatchesSessionHash(storedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}
