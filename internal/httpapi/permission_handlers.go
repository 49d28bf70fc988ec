package httpapi

import (
	"net/http"
	"strings"
)

type permissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		perms, err := a.permissions.List(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perms)
	case http.MethodPost:
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.permissions.Create(r.Context(), req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "permissions.create", clientIP(r))
		writeJSON(w, http.StatusOK, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/permissions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.permissions.Update(r.Context(), id, req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !updated {
			writeError(w, r, http.StatusNotFound, "permission not found")
			return
		}
		a.audit(r.Context(), "permissions.update", clientIP(r))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		deleted, err := a.permissions.Delete(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, r, http.StatusNotFound, "permission not found")
			return
		}
		a.audit(r.Context(), "permissions.delete", clientIP(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}
