// Package httpapi is the HTTP layer over the onboarding, rbac, and audit
// services.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"kadra.org/api/spec"
	"kadra.org/internal/audit"
	"kadra.org/internal/obs"
	"kadra.org/internal/onboarding"
	"kadra.org/internal/rbac"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// VerifyService starts onboarding from an identity claim.
type VerifyService interface {
	Verify(ctx context.Context, email, phone string, meta onboarding.RequestMeta) (onboarding.VerifyResult, error)
}

// SetupFlow drives a setup token through its remaining steps.
type SetupFlow interface {
	Resume(ctx context.Context, bearer string) (onboarding.ResumeState, error)
	ConfirmPhoneAuth(ctx context.Context, bearer string) (onboarding.ResumeState, error)
	ChooseUsername(ctx context.Context, bearer string) (onboarding.ResumeState, error)
	Activate(ctx context.Context, bearer, username, password, confirmPassword string, meta onboarding.RequestMeta) (onboarding.ActivationResult, error)
}

// RoleEngine mutates and inspects role grants.
type RoleEngine interface {
	Grant(ctx context.Context, accountID, roleName string, expiresAt *time.Time, actorID, notes string) (rbac.Grant, error)
	Revoke(ctx context.Context, accountID, roleName, actorID string) error
	SweepExpired(ctx context.Context, now time.Time) rbac.SweepResult
	ActiveRoles(ctx context.Context, accountID string) ([]rbac.Role, error)
	Catalog() *rbac.Catalog
}

// AuditQuerier reads the audit ledger.
type AuditQuerier interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
	ExportCSV(ctx context.Context, f audit.Filter, w io.Writer) error
}

// Config wires the API's dependencies.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string
	Verify     VerifyService
	Setup      SetupFlow
	Roles      RoleEngine
	Audit      AuditQuerier
	Sessions   onboarding.SessionStore
	Clock      func() time.Time
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	verify     VerifyService
	setup      SetupFlow
	roles      RoleEngine
	audit      AuditQuerier
	sessions   onboarding.SessionStore
	now        func() time.Time
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		verify:     cfg.Verify,
		setup:      cfg.Setup,
		roles:      cfg.Roles,
		audit:      cfg.Audit,
		sessions:   cfg.Sessions,
		now:        cfg.Clock,
	}
	if a.now == nil {
		a.now = time.Now
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// onboarding (setup-token bearer, not session auth)
	a.mux.HandleFunc("/v1/onboarding/verify", a.handleVerify)
	a.mux.HandleFunc("/v1/onboarding/session", a.handleSetupSession)
	a.mux.HandleFunc("/v1/onboarding/phone", a.handleConfirmPhone)
	a.mux.HandleFunc("/v1/onboarding/username", a.handleChooseUsername)
	a.mux.HandleFunc("/v1/onboarding/activate", a.handleActivate)

	// role grants and audit (session auth)
	a.mux.HandleFunc("/v1/roles", a.handleRoleCatalog)
	a.mux.HandleFunc("/v1/grants", a.handleGrants)
	a.mux.HandleFunc("/v1/grants/sweep", a.handleSweep)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountScoped)
	a.mux.HandleFunc("/v1/audit", a.handleAuditQuery)
	a.mux.HandleFunc("/v1/audit/export", a.handleAuditExport)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "kadra-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "kadra-api",
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func requestMeta(r *http.Request) onboarding.RequestMeta {
	return onboarding.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
