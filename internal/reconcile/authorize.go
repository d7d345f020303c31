package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

// Requirement states who may perform an operation. A zero Requirement only
// needs a signed-in caller.
type Requirement struct {
	MinRole enums.MemberRole
	// OwnerID lets the owner of a record through even without MinRole.
	OwnerID string
	// OwnerEmail matches the owner by email when no user id is stored.
	OwnerEmail string
}

// AdminOnly is the requirement for administrative operations.
var AdminOnly = Requirement{MinRole: enums.MemberRoleAdmin}

// SignedIn is the requirement for operations any member may perform.
var SignedIn = Requirement{}

// Authorizer decides whether the caller on ctx satisfies a requirement.
type Authorizer interface {
	Authorize(ctx context.Context, req Requirement) (*backend.User, error)
}

// IdentitySource resolves the caller.
type IdentitySource interface {
	CurrentUser(ctx context.Context) (*backend.User, error)
}

// RoleAuthorizer checks role rank and ownership against the caller returned
// by an identity source.
type RoleAuthorizer struct {
	identity IdentitySource
}

// NewRoleAuthorizer builds the authorizer used by every view.
func NewRoleAuthorizer(identity IdentitySource) (*RoleAuthorizer, error) {
	if identity == nil {
		return nil, errors.New("identity source required")
	}
	return &RoleAuthorizer{identity: identity}, nil
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, req Requirement) (*backend.User, error) {
	user, err := a.identity.CurrentUser(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Unauthorized: unable to verify your session")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized: please sign in")
	}
	if req.MinRole == "" || user.Role.AtLeast(req.MinRole) {
		return user, nil
	}
	if req.OwnerID != "" && req.OwnerID == user.ID {
		return user, nil
	}
	if req.OwnerEmail != "" && strings.EqualFold(req.OwnerEmail, user.Email) {
		return user, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "Unauthorized: %s access required", req.MinRole)
}

// Allowed reports whether the caller satisfies req without surfacing why not.
func Allowed(ctx context.Context, auth Authorizer, req Requirement) bool {
	_, err := auth.Authorize(ctx, req)
	return err == nil
}
