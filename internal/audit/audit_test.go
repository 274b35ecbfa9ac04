package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	entries []Entry
	appendErr error
}

func (m *memStore) Append(_ context.Context, e *Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecordStampsTimestampAndMergesSnapshots(t *testing.T) {
	store := &memStore{}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	log, err := NewLog(store, WithClock(fixedClock(at)))
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}

	details := map[string]any{"reason": "phone mismatch"}
	entry, err := log.Record(context.Background(), Entry{
		Action:       ActionAccessDenied,
		ResourceType: "employee",
		ResourceID:   "emp-1",
		Details:      details,
		Before:       map[string]any{"roles": []string{"employee"}},
		After:        map[string]any{"roles": []string{"employee", "manager"}},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if entry.Details["timestamp"] != "2026-03-14T09:30:00Z" {
		t.Fatalf("unexpected timestamp: %v", entry.Details["timestamp"])
	}
	if entry.Details["before_state"] == nil || entry.Details["after_state"] == nil {
		t.Fatalf("snapshots not merged: %v", entry.Details)
	}
	if entry.Details["reason"] != "phone mismatch" {
		t.Fatalf("caller details lost: %v", entry.Details)
	}
	if _, ok := details["timestamp"]; ok {
		t.Fatalf("caller map was mutated")
	}
	if entry.CreatedAt != at {
		t.Fatalf("unexpected created_at: %v", entry.CreatedAt)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(store.entries))
	}
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	log, _ := NewLog(&memStore{})
	if _, err := log.Record(context.Background(), Entry{ResourceType: "account"}); err != ErrInvalidEntry {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if _, err := log.Record(context.Background(), Entry{Action: ActionRoleGranted}); err != ErrInvalidEntry {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestQueryFiltersByAction(t *testing.T) {
	store := &memStore{}
	log, _ := NewLog(store)
	ctx := context.Background()

	for _, action := range []string{ActionRoleGranted, ActionRoleRevoked, ActionRoleGranted} {
		if _, err := log.Record(ctx, Entry{Action: action, ResourceType: "role_grant"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := log.Query(ctx, Filter{Action: ActionRoleGranted})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestExportCSV(t *testing.T) {
	store := &memStore{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	log, _ := NewLog(store, WithClock(fixedClock(at)))
	ctx := context.Background()

	if _, err := log.Record(ctx, Entry{
		Action:       ActionRoleGranted,
		ActorID:      "acct-9",
		TargetID:     "acct-3",
		ResourceType: "role_grant",
		ResourceID:   "grant-1",
		Details:      map[string]any{"role": "manager"},
		IP:           "10.1.2.3",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var buf bytes.Buffer
	if err := log.ExportCSV(ctx, Filter{}, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if !strings.EqualFold(rows[0][0], "id") {
		t.Fatalf("missing header row: %v", rows[0])
	}
	row := rows[1]
	if row[1] != ActionRoleGranted || row[2] != "acct-9" || row[6] != "10.1.2.3" {
		t.Fatalf("unexpected row: %v", row)
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(row[8]), &details); err != nil {
		t.Fatalf("details column not JSON: %v", err)
	}
	if details["role"] != "manager" {
		t.Fatalf("details lost in export: %v", details)
	}
}
