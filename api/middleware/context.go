package middleware

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
)

// UserIDFromContext returns the id of the verified caller, if any.
func UserIDFromContext(ctx context.Context) string {
	if user := backend.UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}

// RoleFromContext returns the role of the verified caller, if any.
func RoleFromContext(ctx context.Context) string {
	if user := backend.UserFromContext(ctx); user != nil {
		return user.Role.String()
	}
	return ""
}

// WithUser injects a verified caller into the context.
func WithUser(ctx context.Context, user *backend.User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return backend.WithUser(ctx, user)
}
