package httpapi

import (
	"net/http"
	"strings"
)

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type assignPermissionRequest struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.roles.List(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	case http.MethodPost:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.roles.Create(r.Context(), req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "roles.create", clientIP(r))
		writeJSON(w, http.StatusOK, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	if parts[0] == "assign-permission" {
		a.handleAssignPermission(w, r)
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRoleByID(w, r, id)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPut:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.roles.Update(r.Context(), id, req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !updated {
			writeError(w, r, http.StatusNotFound, "role not found")
			return
		}
		a.audit(r.Context(), "roles.update", clientIP(r))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		deleted, err := a.roles.Delete(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, r, http.StatusNotFound, "role not found")
			return
		}
		a.audit(r.Context(), "roles.delete", clientIP(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.roles.RolePermissions(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) handleAssignPermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req assignPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RoleID) == "" || strings.TrimSpace(req.PermissionID) == "" {
		writeError(w, r, http.StatusBadRequest, "role_id and permission_id are required")
		return
	}

	ok, err := a.roles.AssignPermission(r.Context(), req.RoleID, req.PermissionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "role or permission not found")
		return
	}
	a.audit(r.Context(), "roles.assign_permission", clientIP(r))
	writeJSON(w, http.StatusOK, map[string]any{"message": "permission assigned"})
}
