package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"erbms.org/internal/audit"
	"erbms.org/internal/auth"
	"erbms.org/internal/obs"
	"erbms.org/internal/rbac"
)

// ReadyProbe pings the database for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. All domain routes live under /api.
type API struct {
	mux         *http.ServeMux
	auth        *auth.Service
	users       *rbac.UserService
	roles       *rbac.RoleService
	permissions *rbac.PermissionService
	issuer      *auth.TokenIssuer
	recorder    *audit.Recorder
	readyProbe  ReadyProbe
	version     string
}

// Deps carries the wired services the API serves.
type Deps struct {
	Auth        *auth.Service
	Users       *rbac.UserService
	Roles       *rbac.RoleService
	Permissions *rbac.PermissionService
	Issuer      *auth.TokenIssuer
	Recorder    *audit.Recorder
	ReadyProbe  ReadyProbe
	Version     string
}

func New(deps Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		auth:        deps.Auth,
		users:       deps.Users,
		roles:       deps.Roles,
		permissions: deps.Permissions,
		issuer:      deps.Issuer,
		recorder:    deps.Recorder,
		readyProbe:  deps.ReadyProbe,
		version:     deps.Version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/auth/email-available", a.handleEmailAvailable)
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/refresh-token", a.handleRefreshToken)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/api/users", a.handleUsers)
	a.mux.HandleFunc("/api/users/", a.handleUserScoped)

	a.mux.HandleFunc("/api/roles", a.handleRoles)
	a.mux.HandleFunc("/api/roles/", a.handleRoleScoped)

	a.mux.HandleFunc("/api/permissions", a.handlePermissions)
	a.mux.HandleFunc("/api/permissions/", a.handlePermissionScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware-wrapped handler for the server.
func (a *API) Handler(clientOrigin string) http.Handler {
	h := a.withAuth(a.mux)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 40, 20)
	h = CORS(h, clientOrigin)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = Recover(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "erbms-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
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

// handleServiceError maps sentinel errors from the rbac services to HTTP.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}

func (a *API) audit(ctx context.Context, action, ip string) {
	if a.recorder == nil {
		return
	}
	a.recorder.Record(ctx, action, ip)
}
