package auth

import (
	"context"
	"strings"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth_user_id"
	rolesKey  ctxKey = "auth_roles"
)

// ContextWithUser stores the authenticated user identity in the context.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesKey, dedupeRoles(roles))
	}
	return ctx
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns the roles stored in context (deduplicated and
// lower-cased).
func RolesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasRole checks whether the context carries the specified role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
