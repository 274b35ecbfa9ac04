package onboarding

import (
	"context"
	"time"
)

// Lockout configuration. These are fixed constants, not computed.
const (
	LockoutThreshold = 3
	LockoutWindow    = time.Hour
)

// Limiter counts recent verification failures per identity key over a
// sliding window. It is a pure read over the attempt ledger; recording the
// attempts themselves is the verification service's job.
type Limiter struct {
	attempts  AttemptStore
	threshold int
	window    time.Duration
	now       func() time.Time
}

// NewLimiter constructs a Limiter with the fixed lockout policy.
func NewLimiter(attempts AttemptStore) *Limiter {
	return &Limiter{
		attempts:  attempts,
		threshold: LockoutThreshold,
		window:    LockoutWindow,
		now:       time.Now,
	}
}

// RecentFailures returns the number of failed attempts for the identity key
// within the trailing window.
func (l *Limiter) RecentFailures(ctx context.Context, email string) (int, error) {
	since := l.now().Add(-l.window)
	return l.attempts.CountFailuresSince(ctx, email, since)
}

// IsLocked reports whether the identity key has reached the failure
// threshold.
func (l *Limiter) IsLocked(ctx context.Context, email string) (bool, error) {
	n, err := l.RecentFailures(ctx, email)
	if err != nil {
		return false, err
	}
	return n >= l.threshold, nil
}
