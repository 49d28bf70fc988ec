package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"erbms.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	adminRole  = "Admin"
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/",
}

var publicPrefixes = []string{
	"/api/auth/",
}

// withAuth validates the bearer token on every non-public route and stores
// the subject and roles in the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.issuer == nil {
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

		claims, err := a.issuer.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates the mutating RBAC surface. Writes the response itself
// and returns false when the caller lacks the role.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if auth.HasRole(r.Context(), adminRole) {
		return true
	}
	writeError(w, r, http.StatusForbidden, "admin role required")
	return false
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
