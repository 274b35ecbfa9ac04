package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordVerificationCountsLockouts(t *testing.T) {
	lockedBefore := testutil.ToFloat64(lockoutsTotal)
	mismatchBefore := testutil.ToFloat64(verificationAttempts.WithLabelValues("mismatch"))

	RecordVerification("mismatch")
	RecordVerification("locked")

	if got := testutil.ToFloat64(verificationAttempts.WithLabelValues("mismatch")); got != mismatchBefore+1 {
		t.Fatalf("mismatch counter = %v, want %v", got, mismatchBefore+1)
	}
	if got := testutil.ToFloat64(lockoutsTotal); got != lockedBefore+1 {
		t.Fatalf("lockouts counter = %v, want %v", got, lockedBefore+1)
	}
}

func TestSetReady(t *testing.T) {
	SetReady(true)
	if got := testutil.ToFloat64(ready); got != 1 {
		t.Fatalf("ready gauge = %v, want 1", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(ready); got != 0 {
		t.Fatalf("ready gauge = %v, want 0", got)
	}
}
