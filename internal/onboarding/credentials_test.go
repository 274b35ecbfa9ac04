package onboarding

import (
	"testing"
	"time"
)

var testSecret = []byte("test-signing-secret")

func TestSetupCredentialRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	raw, err := signSetupCredential(testSecret, "emp-1", "alice@co.com", "tok-1", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := parseSetupCredential(testSecret, raw, time.Now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "emp-1" || claims.EmployeeEmail != "alice@co.com" || claims.TokenID != "tok-1" {
		t.Fatalf("claims lost: %+v", claims)
	}
}

func TestSetupCredentialRejectsTamperAndExpiry(t *testing.T) {
	now := time.Now().UTC()
	raw, err := signSetupCredential(testSecret, "emp-1", "alice@co.com", "tok-1", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := parseSetupCredential([]byte("other-secret"), raw, time.Now); err == nil {
		t.Fatal("wrong secret must fail")
	}
	if _, err := parseSetupCredential(testSecret, raw+"x", time.Now); err == nil {
		t.Fatal("tampered token must fail")
	}

	future := func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := parseSetupCredential(testSecret, raw, future); err == nil {
		t.Fatal("expired credential must fail")
	}
}

func TestSessionTokenFormatAndHash(t *testing.T) {
	now := time.Now().UTC()
	raw, sess, err := newSessionToken("acct-1", now, DefaultSessionTTL)
	if err != nil {
		t.Fatalf("newSessionToken: %v", err)
	}

	id, secret, err := SplitSessionToken(raw)
	if err != nil {
		t.Fatalf("SplitSessionToken: %v", err)
	}
	if id != sess.ID {
		t.Fatalf("id mismatch: %s vs %s", id, sess.ID)
	}
	if sess.TokenHash == secret {
		t.Fatal("secret must not be stored verbatim")
	}
	if !MatchesSessionHash(sess.TokenHash, secret) {
		t.Fatal("secret must match its digest")
	}
	if MatchesSessionHash(sess.TokenHash, "forged") {
		t.Fatal("forged secret must not match")
	}
	if !sess.ExpiresAt.Equal(now.Add(DefaultSessionTTL)) {
		t.Fatalf("unexpected expiry: %v", sess.ExpiresAt)
	}

	if _, _, err := SplitSessionToken("no-dot-here"); err == nil {
		t.Fatal("malformed session token must fail to split")
	}
}
