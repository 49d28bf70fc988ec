package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"erbms.org/internal/auth"
	"erbms.org/internal/rbac"
)

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := a.auth.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, rbac.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "registration failed")
		return
	}
	if !ok {
		writeError(w, r, http.StatusConflict, "email already in use")
		return
	}

	a.audit(r.Context(), "auth.register", clientIP(r))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "registration accepted, awaiting approval",
	})
}

func (a *API) handleEmailAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	available, err := a.auth.EmailAvailable(r.Context(), email)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	switch result.Status {
	case auth.LoginSuccess:
		a.audit(r.Context(), "auth.login", clientIP(r))
		writeJSON(w, http.StatusOK, result.Response)
	case auth.LoginPendingApproval:
		writeError(w, r, http.StatusForbidden, "account pending approval")
	default:
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	}
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}
	if resp == nil {
		writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	a.audit(r.Context(), "auth.refresh", clientIP(r))
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	revoked, err := a.auth.Logout(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	if !revoked {
		writeError(w, r, http.StatusNotFound, "refresh token not found")
		return
	}

	a.audit(r.Context(), "auth.logout", clientIP(r))
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}
