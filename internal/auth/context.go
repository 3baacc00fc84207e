package auth

import (
	"context"
	"strings"

	"kinhelp.org/internal/care"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth_user_id"
	rolesKey  ctxKey = "auth_roles"
	claimsKey ctxKey = "auth_claims"
)

// ContextWithUser stores user identity in the context.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesKey, dedupeRoles(roles))
	}
	return ctx
}

// ContextWithClaims stores verified claims along with the identity they carry.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = ContextWithUser(ctx, c.Subject, c.Roles)
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns the claims of the token that authenticated the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns the roles stored in context (deduplicated and lower-cased).
func RolesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// ActorFromContext maps the authenticated identity onto a care actor. The first role
// recognised by the care core wins; tokens carrying none of them yield false.
func ActorFromContext(ctx context.Context) (care.Actor, bool) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return care.Actor{}, false
	}
	for _, r := range RolesFromContext(ctx) {
		if role, ok := care.ParseRole(r); ok {
			return care.Actor{ID: id, Role: role}, true
		}
	}
	return care.Actor{}, false
}
