package members

import (
	"context"
	"errors"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

// Resource is the name members views are registered under.
const Resource = "members"

// Service is the members view: the roster with pending invitations, its
// statistics, and the admin workflows that change it.
type Service interface {
	Refresh(ctx context.Context) error
	Snapshot() reconcile.Snapshot[Member, Stats]
	Filter(c reconcile.Criteria) []Member
	SetQuery(q reconcile.Query)
	Create(ctx context.Context, in *CreateInput) (*Member, error)
	Invite(ctx context.Context, in *InviteInput) (*Member, error)
	Update(ctx context.Context, id string, in *UpdateInput) (*Member, error)
	Delete(ctx context.Context, id string) error
	Approve(ctx context.Context, invitationID string, role enums.MemberRole) error
	Reject(ctx context.Context, invitationID, reason string) error
	Close()
}

// ServiceParams configure the members view.
type ServiceParams struct {
	Deps  reconcile.Deps
	Query reconcile.Query
	// Seed replaces DefaultSeed as the degraded-mode roster.
	Seed []Member
}

type service struct {
	backend backend.Backend
	mounted *reconcile.Mounted[Member, Stats]
}

// NewService mounts a members view bound to ctx.
func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	if params.Deps.Backend == nil {
		return nil, errors.New("backend required")
	}
	seed := params.Seed
	if seed == nil {
		seed = DefaultSeed()
	}
	mounted, err := reconcile.Mount(ctx, params.Deps, reconcile.MountSpec[Member, Stats]{
		Resource:  Resource,
		Procedure: procedureTier(params.Deps.Backend),
		Join:      joinTier(params.Deps.Backend),
		Seed:      seed,
		Derive:    Derive,
		Fields:    fields,
		Query:     params.Query,
		Export:    Export,
	})
	if err != nil {
		return nil, err
	}
	return &service{backend: params.Deps.Backend, mounted: mounted}, nil
}

func (s *service) Refresh(ctx context.Context) error {
	return s.mounted.View.Refresh(ctx)
}

func (s *service) Snapshot() reconcile.Snapshot[Member, Stats] {
	return s.mounted.View.Snapshot()
}

func (s *service) Filter(c reconcile.Criteria) []Member {
	return s.mounted.View.Filter(c)
}

func (s *service) SetQuery(q reconcile.Query) {
	s.mounted.View.SetQuery(q)
}

func (s *service) Close() {
	s.mounted.Close()
}

// CreateInput adds a member directly, skipping the invitation step.
type CreateInput struct {
	FullName       string           `json:"full_name" validate:"required,min=2,max=120"`
	Email          string           `json:"email" validate:"required,email"`
	Role           enums.MemberRole `json:"role" validate:"omitempty,oneof=member volunteer moderator admin"`
	Major          *string          `json:"major,omitempty" validate:"omitempty,max=120"`
	GraduationYear *int             `json:"graduation_year,omitempty" validate:"omitempty,min=1950,max=2100"`
	Phone          *string          `json:"phone,omitempty" validate:"omitempty,max=32"`
}

func (in *CreateInput) Normalize() {
	in.FullName = reconcile.Trim(in.FullName)
	in.Email = reconcile.NormalizeEmail(in.Email)
	in.Major = reconcile.TrimPtr(in.Major)
	in.Phone = reconcile.TrimPtr(in.Phone)
	if in.Role == "" {
		in.Role = enums.MemberRoleMember
	}
}

func (s *service) Create(ctx context.Context, in *CreateInput) (*Member, error) {
	if in == nil {
		in = &CreateInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Member]{
		Action:  "add",
		Subject: "Member",
		Require: reconcile.AdminOnly,
		Input:   in,
		Run: func(ctx context.Context, actor *backend.User) (*Member, error) {
			row := backend.Row{
				"full_name": in.FullName,
				"email":     in.Email,
				"role":      string(in.Role),
				"status":    string(enums.MemberStatusActive),
			}
			setOptional(row, "major", in.Major)
			setOptional(row, "phone", in.Phone)
			if in.GraduationYear != nil {
				row["graduation_year"] = *in.GraduationYear
			}
			out, err := s.backend.Insert(ctx, collectionMembers, row)
			if err != nil {
				return nil, err
			}
			m := fromRow(out)
			return &m, nil
		},
		Done: func(m *Member) string { return m.FullName + " was added to the roster" },
	})
}

// InviteInput invites someone by email.
type InviteInput struct {
	Email    string           `json:"email" validate:"required,email"`
	FullName string           `json:"full_name" validate:"omitempty,max=120"`
	Role     enums.MemberRole `json:"role" validate:"omitempty,oneof=member volunteer moderator admin"`
	Message  *string          `json:"message,omitempty" validate:"omitempty,max=1000"`
}

func (in *InviteInput) Normalize() {
	in.Email = reconcile.NormalizeEmail(in.Email)
	in.FullName = reconcile.Trim(in.FullName)
	in.Message = reconcile.TrimPtr(in.Message)
	if in.Role == "" {
		in.Role = enums.MemberRoleMember
	}
}

func (s *service) Invite(ctx context.Context, in *InviteInput) (*Member, error) {
	if in == nil {
		in = &InviteInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Member]{
		Action:  "invite",
		Subject: "Member",
		Require: reconcile.AdminOnly,
		Input:   in,
		Run: func(ctx context.Context, actor *backend.User) (*Member, error) {
			if err := s.ensureNew(ctx, in.Email); err != nil {
				return nil, err
			}
			row := backend.Row{
				"email":      in.Email,
				"role":       string(in.Role),
				"status":     string(enums.InvitationStatusPending),
				"invited_by": actor.ID,
			}
			if in.FullName != "" {
				row["full_name"] = in.FullName
			}
			setOptional(row, "message", in.Message)
			out, err := s.backend.Insert(ctx, collectionInvitations, row)
			if err != nil {
				return nil, err
			}
			m := fromInvitation(out, "")
			return &m, nil
		},
		Done: func(m *Member) string { return "Invitation sent to " + m.Email },
	})
}

// ensureNew fails with a duplicate error when email already belongs to a
// member or a pending invitation.
func (s *service) ensureNew(ctx context.Context, email string) error {
	_, total, err := s.backend.Query(ctx, collectionMembers, backend.QuerySpec{
		Filters: []backend.Filter{backend.Eq("email", email)},
		Limit:   1,
	})
	if err != nil {
		return err
	}
	if total > 0 {
		return backend.Errorf(backend.KindDuplicate, "invite", "member %s already exists", email)
	}
	_, total, err = s.backend.Query(ctx, collectionInvitations, backend.QuerySpec{
		Filters: []backend.Filter{
			backend.Eq("email", email),
			backend.Eq("status", string(enums.InvitationStatusPending)),
		},
		Limit: 1,
	})
	if err != nil {
		return err
	}
	if total > 0 {
		return backend.Errorf(backend.KindDuplicate, "invite", "invitation for %s already exists", email)
	}
	return nil
}

// UpdateInput is a partial member update. Role and status changes need an
// admin; owners may edit their own profile fields.
type UpdateInput struct {
	FullName       *string             `json:"full_name,omitempty" validate:"omitempty,min=2,max=120"`
	Email          *string             `json:"email,omitempty" validate:"omitempty,email"`
	Role           *enums.MemberRole   `json:"role,omitempty" validate:"omitempty,oneof=member volunteer moderator admin"`
	Status         *enums.MemberStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive alumni pending suspended"`
	Major          *string             `json:"major,omitempty" validate:"omitempty,max=120"`
	GraduationYear *int                `json:"graduation_year,omitempty" validate:"omitempty,min=1950,max=2100"`
	Phone          *string             `json:"phone,omitempty" validate:"omitempty,max=32"`
}

func (in *UpdateInput) Normalize() {
	if in.FullName != nil {
		v := reconcile.Trim(*in.FullName)
		in.FullName = &v
	}
	if in.Email != nil {
		v := reconcile.NormalizeEmail(*in.Email)
		in.Email = &v
	}
	in.Major = reconcile.TrimPtr(in.Major)
	in.Phone = reconcile.TrimPtr(in.Phone)
}

func (in *UpdateInput) patch() backend.Row {
	row := backend.Row{}
	if in.FullName != nil {
		row["full_name"] = *in.FullName
	}
	if in.Email != nil {
		row["email"] = *in.Email
	}
	if in.Role != nil {
		row["role"] = string(*in.Role)
	}
	if in.Status != nil {
		row["status"] = string(*in.Status)
	}
	setOptional(row, "major", in.Major)
	setOptional(row, "phone", in.Phone)
	if in.GraduationYear != nil {
		row["graduation_year"] = *in.GraduationYear
	}
	return row
}

func (in *UpdateInput) privileged() bool {
	return in.Role != nil || in.Status != nil
}

func (s *service) Update(ctx context.Context, id string, in *UpdateInput) (*Member, error) {
	if in == nil {
		in = &UpdateInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Member]{
		Action:  "update",
		Subject: "Member",
		Require: s.ownerRequirement(id),
		Input:   in,
		Validate: func() error {
			if err := reconcile.RequireID("id", id); err != nil {
				return err
			}
			if len(in.patch()) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
			}
			return nil
		},
		Run: func(ctx context.Context, actor *backend.User) (*Member, error) {
			if in.privileged() && !actor.Role.AtLeast(enums.MemberRoleAdmin) {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized: admin access required to change role or status")
			}
			out, err := s.backend.Update(ctx, collectionMembers, reconcile.Trim(id), in.patch())
			if err != nil {
				return nil, err
			}
			m := fromRow(out)
			return &m, nil
		},
		Done: func(m *Member) string { return m.FullName + " was updated" },
	})
}

// ownerRequirement lets the member behind id through alongside admins.
func (s *service) ownerRequirement(id string) reconcile.Requirement {
	req := reconcile.AdminOnly
	for _, m := range s.mounted.View.Collection() {
		if m.ID != strings.TrimSpace(id) || m.IsInvitation() {
			continue
		}
		if m.UserID != nil {
			req.OwnerID = *m.UserID
		}
		req.OwnerEmail = m.Email
		break
	}
	return req
}

func (s *service) Delete(ctx context.Context, id string) error {
	collection := collectionMembers
	subject := "Member"
	for _, m := range s.mounted.View.Collection() {
		if m.ID == strings.TrimSpace(id) && m.IsInvitation() {
			collection = collectionInvitations
			subject = "Invitation"
			break
		}
	}
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "delete",
		Subject:  subject,
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Optimistic: func() {
			s.mounted.View.Patch(func(records []Member) []Member {
				return removeID(records, strings.TrimSpace(id))
			})
		},
		Run: func(ctx context.Context, actor *backend.User) (struct{}, error) {
			return struct{}{}, s.backend.Delete(ctx, collection, reconcile.Trim(id))
		},
		Done: func(struct{}) string { return subject + " removed" },
	})
	return err
}

func (s *service) Approve(ctx context.Context, invitationID string, role enums.MemberRole) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:  "approve",
		Subject: "Membership request",
		Require: reconcile.AdminOnly,
		Validate: func() error {
			if err := reconcile.RequireID("invitation_id", invitationID); err != nil {
				return err
			}
			if role != "" && !role.IsValid() {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "role must be one of %s", strings.Join(roleKeys, ", "))
			}
			return nil
		},
		Run: func(ctx context.Context, actor *backend.User) (struct{}, error) {
			args := map[string]any{
				"invitation_id": reconcile.Trim(invitationID),
				"actor_id":      actor.ID,
			}
			if role != "" {
				args["role"] = string(role)
			}
			payload, err := s.backend.Call(ctx, procApprove, args)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, reconcile.CheckStatus(procApprove, payload)
		},
		Done: func(struct{}) string { return "Membership request approved" },
	})
	return err
}

func (s *service) Reject(ctx context.Context, invitationID, reason string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "reject",
		Subject:  "Membership request",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("invitation_id", invitationID) },
		Run: func(ctx context.Context, actor *backend.User) (struct{}, error) {
			args := map[string]any{
				"invitation_id": reconcile.Trim(invitationID),
				"actor_id":      actor.ID,
			}
			if r := reconcile.Trim(reason); r != "" {
				args["reason"] = r
			}
			payload, err := s.backend.Call(ctx, procReject, args)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, reconcile.CheckStatus(procReject, payload)
		},
		Done: func(struct{}) string { return "Membership request rejected" },
	})
	return err
}

func setOptional(row backend.Row, field string, value *string) {
	if value != nil {
		row[field] = *value
	}
}

func removeID(records []Member, id string) []Member {
	out := records[:0]
	for _, m := range records {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
