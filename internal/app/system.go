package app

import (
	"context"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

// SystemActor is the identity background processes act as.
var SystemActor = &backend.User{ID: "system", Email: "system@portal.local", Role: enums.MemberRoleAdmin}

// SystemContext attaches the system actor, and the configured service token
// when one is set, so admin-only views load outside a request.
func (r *Resources) SystemContext(ctx context.Context) context.Context {
	ctx = backend.WithUser(ctx, SystemActor)
	if token := strings.TrimSpace(r.Config.Backend.ServiceToken); token != "" {
		ctx = backend.WithAccessToken(ctx, token)
	}
	return ctx
}
