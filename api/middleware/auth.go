package middleware

import (
	"context"
	"net/http"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/api/validators"
	"github.com/msa-portal/portal-backend/internal/backend"
	pkgAuth "github.com/msa-portal/portal-backend/pkg/auth"
	"github.com/msa-portal/portal-backend/pkg/config"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

// IdentifyParams configure how callers are identified.
type IdentifyParams struct {
	JWT config.JWTConfig
	// Verify checks the token locally and seeds the verified user. When
	// false the token is forwarded to the backend untouched and the backend
	// resolves the caller itself.
	Verify bool
	Logger *logger.Logger
}

// Identify attaches the caller's access token, and when verification is on,
// the verified user, to the request context. Requests without credentials
// continue anonymously; the services decide what anonymous callers may do.
func Identify(params IdentifyParams) func(http.Handler) http.Handler {
	logg := params.Logger
	var verifier *pkgAuth.Verifier
	var verifierErr error
	if params.Verify {
		verifier, verifierErr = pkgAuth.NewVerifier(params.JWT)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := validators.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid credentials"))
				return
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := backend.WithAccessToken(r.Context(), token)
			if params.Verify {
				if verifierErr != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, verifierErr, "token verification unavailable"))
					return
				}
				claims, err := verifier.Verify(token)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
					return
				}
				user := &backend.User{ID: claims.UserID.String(), Email: claims.Email, Role: claims.Role}
				ctx = WithUser(ctx, user)
				ctx = withIdentityFields(ctx, logg, user)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withIdentityFields(ctx context.Context, logg *logger.Logger, user *backend.User) context.Context {
	if logg == nil || user == nil {
		return ctx
	}
	ctx = logg.WithUserID(ctx, user.ID)
	return logg.WithActorRole(ctx, user.Role.String())
}
