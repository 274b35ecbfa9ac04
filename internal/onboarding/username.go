package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// usernameProbes bounds collision resolution; in practice a handful of
// suffixes suffice.
const usernameProbes = 10000

// Generator derives unique login handles from employee name pairs.
type Generator struct {
	accounts AccountStore
}

// NewGenerator constructs a Generator that checks candidates against
// existing accounts.
func NewGenerator(accounts AccountStore) (*Generator, error) {
	if accounts == nil {
		return nil, errors.New("onboarding: account store is required")
	}
	return &Generator{accounts: accounts}, nil
}

// Generate returns "first.last" lower-cased with all non-alphanumeric ASCII
// stripped, appending a numeric suffix starting at 2 until the candidate is
// free. Names that sanitize to nothing still yield a deterministic base.
func (g *Generator) Generate(ctx context.Context, firstName, lastName string) (string, error) {
	base := sanitizeName(firstName) + "." + sanitizeName(lastName)

	candidate := base
	for i := 2; i <= usernameProbes; i++ {
		taken, err := g.accounts.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", fmt.Errorf("onboarding: could not find a free username for %q", base)
}

// sanitizeName lower-cases the name and strips every character that is not
// an ASCII letter or digit. The result may be empty.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
