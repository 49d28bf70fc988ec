package httpapi

import (
	"net/http"
	"strings"

	"erbms.org/internal/auth"
	"erbms.org/internal/rbac"
)

type createUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type userRoleRequest struct {
	UserID   string `json:"user_id"`
	RoleName string `json:"role_name"`
}

type cleanupIdentityRequest struct {
	Email string `json:"email"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireAdmin(w, r) {
			return
		}
		users, err := a.users.List(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.users.Create(r.Context(), req.FullName, req.Email, req.Password)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "users.create", clientIP(r))
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserScoped dispatches /api/users/<segment>[...]. Action verbs come
// before id routes so "assign-role" is never mistaken for a user id.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch parts[0] {
	case "assign-role":
		a.handleUserRoleChange(w, r, true)
		return
	case "remove-role":
		a.handleUserRoleChange(w, r, false)
		return
	case "cleanup-identity":
		a.handleCleanupIdentity(w, r)
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUserByID(w, r, id)
	case len(parts) == 2 && parts[1] == "approve":
		a.handleApproveUser(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		// Any authenticated caller may read a single user.
		user, err := a.users.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		if !a.requireAdmin(w, r) {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.users.Update(r.Context(), id, req.FullName, req.Email); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "users.update", clientIP(r))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		if callerID, ok := auth.UserIDFromContext(r.Context()); ok && callerID == id {
			writeError(w, r, http.StatusBadRequest, "cannot delete your own account")
			return
		}
		if _, err := a.users.Get(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		deleted, err := a.users.Delete(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !deleted {
			// The user exists but policy blocks the delete.
			writeError(w, r, http.StatusBadRequest, "user cannot be deleted")
			return
		}
		a.audit(r.Context(), "users.delete", clientIP(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleApproveUser(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	approved, err := a.users.Approve(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !approved {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	a.audit(r.Context(), "users.approve", clientIP(r))
	writeJSON(w, http.StatusOK, map[string]any{"message": "user approved"})
}

func (a *API) handleUserRoleChange(w http.ResponseWriter, r *http.Request, assign bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	var req userRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.RoleName) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and role_name are required")
		return
	}

	var (
		ok     bool
		err    error
		action = "users.remove_role"
	)
	if assign {
		action = "users.assign_role"
		ok, err = a.users.AssignRole(r.Context(), req.UserID, req.RoleName)
	} else {
		ok, err = a.users.RemoveRole(r.Context(), req.UserID, req.RoleName)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "user or role not found")
		return
	}
	a.audit(r.Context(), action, clientIP(r))
	writeJSON(w, http.StatusOK, map[string]any{"message": "role membership updated"})
}

func (a *API) handleCleanupIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	var req cleanupIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	result, err := a.users.CleanupIdentity(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	switch result {
	case rbac.CleanupDeleted:
		a.audit(r.Context(), "users.cleanup_identity", clientIP(r))
		writeJSON(w, http.StatusOK, map[string]any{"message": "orphaned identity removed"})
	case rbac.CleanupInUse:
		writeError(w, r, http.StatusBadRequest, "a user account exists for this email; delete the user instead")
	case rbac.CleanupForbidden:
		writeError(w, r, http.StatusBadRequest, "this account cannot be removed")
	default:
		writeError(w, r, http.StatusNotFound, "identity not found")
	}
}
