package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"kadra.org/internal/rbac"
)

type grantRequest struct {
	AccountID string     `json:"account_id"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

type revokeRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

func (a *API) handleRoleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, rbac.PermProfileRead) {
		return
	}
	catalog := a.roles.Catalog()
	out := make([]map[string]any, 0, 4)
	for _, role := range catalog.Roles() {
		out = append(out, map[string]any{
			"name":        string(role),
			"level":       catalog.Level(role),
			"permissions": catalog.Permissions(role),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createGrant(w, r)
	case http.MethodDelete:
		a.revokeGrant(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) createGrant(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, rbac.PermRoleManage) {
		return
	}
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AccountID) == "" || strings.TrimSpace(req.Role) == "" {
		writeError(w, r, http.StatusBadRequest, "account_id and role are required")
		return
	}

	principal, _ := rbac.PrincipalFromContext(r.Context())
	grant, err := a.roles.Grant(r.Context(), req.AccountID, req.Role, req.ExpiresAt, principal.AccountID, req.Notes)
	if err != nil {
		handleGrantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) revokeGrant(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, rbac.PermRoleManage) {
		return
	}
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AccountID) == "" || strings.TrimSpace(req.Role) == "" {
		writeError(w, r, http.StatusBadRequest, "account_id and role are required")
		return
	}

	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := a.roles.Revoke(r.Context(), req.AccountID, req.Role, principal.AccountID); err != nil {
		handleGrantError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, rbac.PermRoleManage) {
		return
	}
	result := a.roles.SweepExpired(r.Context(), a.now().UTC())
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAccountScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "roles" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, rbac.PermTeamRead) {
		return
	}

	roles, err := a.roles.ActiveRoles(r.Context(), parts[0])
	if err != nil {
		handleGrantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": parts[0],
		"roles":      roles,
	})
}

func handleGrantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput), errors.Is(err, rbac.ErrUnknownRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrDuplicateGrant):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNoSuchGrant):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "role operation failed")
	}
}
