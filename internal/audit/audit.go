// Package audit provides the append-only ledger of security-relevant state
// transitions. Entries are never updated or deleted; retention is handled
// outside the service.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Action tags for audited events.
const (
	ActionAccessDenied     = "ACCESS_DENIED"
	ActionIdentityVerified = "IDENTITY_VERIFIED"
	ActionAccountActivated = "ACCOUNT_ACTIVATED"
	ActionRoleGranted      = "ROLE_GRANTED"
	ActionRoleRevoked      = "ROLE_REVOKED"
	ActionRoleExpired      = "ROLE_EXPIRED"
)

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is one immutable audit record. ActorID and TargetID reference
// accounts and may be empty (system actions, pre-account onboarding).
type Entry struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ActorID      string         `json:"actor_id,omitempty"`
	TargetID     string         `json:"target_id,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details"`
	IP           string         `json:"ip,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`

	// Before and After, when set, are folded into Details under
	// "before_state" and "after_state" by Record.
	Before map[string]any `json:"-"`
	After  map[string]any `json:"-"`
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Action       string
	ActorID      string
	TargetID     string
	ResourceType string
	From         time.Time
	To           time.Time
}

// Store persists entries. Append is the only mutation.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Recorder is the write-side capability consumed by other services.
type Recorder interface {
	Record(ctx context.Context, e Entry) (Entry, error)
}

// Log implements Recorder and query access over a Store.
type Log struct {
	store Store
	now   func() time.Time
}

// Option configures Log behavior.
type Option func(*Log)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLog constructs a Log backed by store.
func NewLog(store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	l := &Log{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Finalize normalizes an entry for appending: Details always gain an
// ISO-8601 "timestamp" key, Before/After snapshots are merged under
// "before_state"/"after_state", and the caller's Details map is copied,
// never mutated. Exposed so stores that append an entry inside a larger
// transaction can stamp it the same way Record does.
func Finalize(e Entry, now time.Time) (Entry, error) {
	e.Action = strings.TrimSpace(e.Action)
	e.ResourceType = strings.TrimSpace(e.ResourceType)
	if e.Action == "" || e.ResourceType == "" {
		return Entry{}, ErrInvalidEntry
	}

	now = now.UTC()
	details := make(map[string]any, len(e.Details)+3)
	for k, v := range e.Details {
		details[k] = v
	}
	details["timestamp"] = now.Format(time.RFC3339)
	if e.Before != nil {
		details["before_state"] = e.Before
	}
	if e.After != nil {
		details["after_state"] = e.After
	}
	e.Details = details
	e.Before = nil
	e.After = nil
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return e, nil
}

// Record finalizes and appends one entry.
func (l *Log) Record(ctx context.Context, e Entry) (Entry, error) {
	e, err := Finalize(e, l.now())
	if err != nil {
		return Entry{}, err
	}
	if err := l.store.Append(ctx, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Query returns entries matching the filter, oldest first.
func (l *Log) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return l.store.List(ctx, f)
}
