package middleware

import (
	"net/http"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

// RequireRole refuses callers below min. Callers without a verified
// identity are passed through when an access token is present so that the
// backend can decide; without any credentials they get 401.
func RequireRole(min enums.MemberRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := backend.UserFromContext(r.Context())
			if user == nil {
				if backend.AccessTokenFromContext(r.Context()) == "" {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized: please sign in"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !user.Role.AtLeast(min) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeForbidden, "Unauthorized: %s access required", min))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole for the admin role.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireRole(enums.MemberRoleAdmin, logg)
}
