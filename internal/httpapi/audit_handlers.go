package httpapi

import (
	"net/http"
	"strings"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/rbac"
)

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, rbac.PermAuditRead) {
		return
	}
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := a.audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

func (a *API) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, rbac.PermAuditRead) {
		return
	}
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)
	if err := a.audit.ExportCSV(r.Context(), filter, w); err != nil {
		// headers already sent; the truncated body signals the failure
		return
	}
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:       strings.TrimSpace(q.Get("action")),
		ActorID:      strings.TrimSpace(q.Get("actor_id")),
		TargetID:     strings.TrimSpace(q.Get("target_id")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		return audit.Filter{}, err
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		return audit.Filter{}, err
	}
	return filter, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
