package onboarding

import (
	"context"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Alice":      "alice",
		"O'Brien":    "obrien",
		" Van Der ":  "vander",
		"Jean-Luc":   "jeanluc",
		"Ada3":       "ada3",
		"Алия":       "",
		"":           "",
		"!!!":        "",
	}
	for input, want := range cases {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestGenerateBaseUsername(t *testing.T) {
	accounts := newFakeAccounts(newFakeTokens())
	gen, err := NewGenerator(accounts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	got, err := gen.Generate(context.Background(), "Alice", "Doe")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "alice.doe" {
		t.Fatalf("Generate = %q, want alice.doe", got)
	}
}

func TestGenerateResolvesCollisionsWithIncreasingSuffix(t *testing.T) {
	tokens := newFakeTokens()
	accounts := newFakeAccounts(tokens)
	gen, _ := NewGenerator(accounts)
	ctx := context.Background()

	want := []string{"alice.doe", "alice.doe2", "alice.doe3", "alice.doe4"}
	for _, expected := range want {
		got, err := gen.Generate(ctx, "Alice", "Doe")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if got != expected {
			t.Fatalf("Generate = %q, want %q", got, expected)
		}
		accounts.accounts[got] = Account{ID: got, Username: got}
	}
}

func TestGenerateDegenerateNamesStillDeterministic(t *testing.T) {
	accounts := newFakeAccounts(newFakeTokens())
	gen, _ := NewGenerator(accounts)
	ctx := context.Background()

	got, err := gen.Generate(ctx, "Алия", "Ахметова")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "." {
		t.Fatalf("degenerate base = %q, want \".\"", got)
	}

	accounts.accounts[got] = Account{Username: got}
	got, err = gen.Generate(ctx, "Алия", "Ахметова")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != ".2" {
		t.Fatalf("degenerate collision = %q, want \".2\"", got)
	}
}
