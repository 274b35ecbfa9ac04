package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"kadra.org/internal/onboarding"
	"kadra.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths below are reachable without a session. The onboarding flow carries
// its own setup-token bearer, checked inside the handlers.
var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
	"/v1/info",
	"/",
}
var publicPrefixes = []string{
	"/v1/onboarding/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.sessions == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.authenticateSession(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, errInvalidSession):
				writeError(w, r, http.StatusUnauthorized, "invalid session")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := rbac.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errInvalidSession = errors.New("invalid session")

// authenticateSession resolves an opaque "id.secret" session credential and
// builds the caller's principal from their active grants.
func (a *API) authenticateSession(ctx context.Context, token string) (rbac.Principal, error) {
	id, secret, err := onboarding.SplitSessionToken(token)
	if err != nil {
		return rbac.Principal{}, errInvalidSession
	}
	session, err := a.sessions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, onboarding.ErrNotFound) {
			return rbac.Principal{}, errInvalidSession
		}
		return rbac.Principal{}, err
	}
	if session.Revoked || !a.now().Before(session.ExpiresAt) {
		return rbac.Principal{}, errInvalidSession
	}
	if !onboarding.MatchesSessionHash(session.TokenHash, secret) {
		return rbac.Principal{}, errInvalidSession
	}

	roles, err := a.roles.ActiveRoles(ctx, session.AccountID)
	if err != nil {
		return rbac.Principal{}, err
	}
	return rbac.NewPrincipal(session.AccountID, roles, a.roles.Catalog()), nil
}

// ensurePermission writes the error response itself and reports whether the
// handler may proceed.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
