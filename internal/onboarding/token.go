package onboarding

import "time"

// Step identifies one stage of the onboarding flow. The current step is
// always derived from the token's completion flags, never stored, so an
// inconsistent flag combination cannot be trusted silently.
type Step int

const (
	StepPhoneAuth Step = iota
	StepUsernameGeneration
	StepPasswordSetup
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepPhoneAuth:
		return "PHONE_AUTH"
	case StepUsernameGeneration:
		return "USERNAME_GENERATION"
	case StepPasswordSetup:
		return "PASSWORD_SETUP"
	case StepCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// SetupTokenTTL is the fixed lifetime of a setup token from creation.
const SetupTokenTTL = time.Hour

// SetupToken tracks one in-flight onboarding session for a single employee.
// Multiple tokens may exist per employee (for example after a resend); each
// bearer credential pins the token it was issued with, and expired or used
// tokens are permanently inert. Rows are kept forever for audit.
type SetupToken struct {
	ID             string     `json:"id"`
	EmployeeID     string     `json:"employee_id"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Used           bool       `json:"used"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	PhoneAuthDone  bool       `json:"phone_auth_completed"`
	UsernameDone   bool       `json:"username_generation_completed"`
	ChosenUsername string     `json:"chosen_username,omitempty"`
	PasswordDone   bool       `json:"password_setup_completed"`
}

// CurrentStep derives the step a resuming user should be presented with.
func (t *SetupToken) CurrentStep() Step {
	switch {
	case !t.PhoneAuthDone:
		return StepPhoneAuth
	case !t.UsernameDone:
		return StepUsernameGeneration
	case !t.PasswordDone:
		return StepPasswordSetup
	default:
		return StepCompleted
	}
}

// NextStep is an alias for CurrentStep: the derived step is exactly the next
// one to present.
func (t *SetupToken) NextStep() Step { return t.CurrentStep() }

// IsValid reports whether the token can still progress the flow.
func (t *SetupToken) IsValid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// CanResume reports whether a returning user may continue with this token.
func (t *SetupToken) CanResume(now time.Time) bool {
	return t.IsValid(now)
}

// CompletePhoneAuth marks the phone verification step done. Idempotent.
func (t *SetupToken) CompletePhoneAuth() {
	t.PhoneAuthDone = true
}

// CompleteUsernameGeneration records the chosen username and marks the step
// done. Idempotent; re-invoking with the same username is a no-op.
func (t *SetupToken) CompleteUsernameGeneration(username string) {
	t.UsernameDone = true
	t.ChosenUsername = username
}

// CompletePasswordSetup marks the final step done and terminates the token:
// used flips to true and the token can never progress again.
func (t *SetupToken) CompletePasswordSetup(now time.Time) {
	t.PasswordDone = true
	if !t.Used {
		t.Used = true
		used := now
		t.UsedAt = &used
	}
}
