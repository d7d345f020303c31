package procedures

import (
	"context"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var memberListing = listing{
	enums:  []string{"status", "role"},
	search: []string{"full_name", "email", "major"},
}

// membersOverview returns members plus the pending invitations that have not
// turned into a member yet. Invitations surface with status "invited".
func (p *set) membersOverview(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	members, err := all(ctx, tx, "members")
	if err != nil {
		return nil, err
	}
	invitations, err := all(ctx, tx, "member_invitations", backend.Eq("status", string(enums.InvitationStatusPending)))
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(members))
	names := memberNames(members)
	rows := make([]backend.Row, 0, len(members)+len(invitations))
	for _, m := range members {
		known[strings.ToLower(m.String("email"))] = true
		rows = append(rows, m.Merge(backend.Row{"kind": "member"}))
	}
	for _, inv := range invitations {
		email := strings.ToLower(inv.String("email"))
		if known[email] {
			continue
		}
		known[email] = true
		rows = append(rows, backend.Row{
			"id":              inv.ID(),
			"kind":            "invitation",
			"invitation_id":   inv.ID(),
			"full_name":       inv.String("full_name"),
			"email":           email,
			"role":            inv.String("role"),
			"status":          string(enums.MemberStatusInvited),
			"invited_by":      inv["invited_by"],
			"invited_by_name": displayName(names, inv.String("invited_by")),
			"created_at":      inv[backend.FieldCreatedAt],
			"updated_at":      inv[backend.FieldUpdatedAt],
		})
	}
	return memberListing.envelope(rows, backend.Row(args)), nil
}

// memberNames maps both member ids and auth user ids to full names.
func memberNames(members []backend.Row) map[string]string {
	names := make(map[string]string, 2*len(members))
	for _, m := range members {
		names[m.ID()] = m.String("full_name")
		if uid := m.String("user_id"); uid != "" {
			names[uid] = m.String("full_name")
		}
	}
	return names
}

func displayName(names map[string]string, id string) string {
	if name := names[id]; name != "" {
		return name
	}
	return "Unknown"
}

// approveMemberRequest accepts a pending invitation and creates or activates
// the member it names.
func (p *set) approveMemberRequest(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	a := backend.Row(args)
	inv, err := tx.Get(ctx, "member_invitations", a.String("invitation_id"))
	if err != nil {
		return nil, err
	}
	if inv.String("status") != string(enums.InvitationStatusPending) {
		return rejected("Request already processed"), nil
	}
	role := a.String("role")
	if role == "" {
		role = inv.String("role")
	}
	if _, err := enums.ParseMemberRole(role); err != nil {
		return rejected("Invalid role " + role), nil
	}
	now := p.now().UTC()

	decision := backend.Row{"status": string(enums.InvitationStatusAccepted)}
	if actor := a.String("actor_id"); actor != "" {
		decision["decided_by"] = actor
	}
	if _, err := tx.Update(ctx, "member_invitations", inv.ID(), decision); err != nil {
		return nil, err
	}

	email := strings.ToLower(inv.String("email"))
	existing, err := all(ctx, tx, "members", backend.Eq("email", email))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		member, err := tx.Update(ctx, "members", existing[0].ID(), backend.Row{
			"status": string(enums.MemberStatusActive),
			"role":   role,
		})
		if err != nil {
			return nil, err
		}
		return ok(map[string]any{"member_id": member.ID(), "created": false}), nil
	}

	name := inv.String("full_name")
	if name == "" {
		name = email
	}
	member, err := tx.Insert(ctx, "members", backend.Row{
		"full_name": name,
		"email":     email,
		"role":      role,
		"status":    string(enums.MemberStatusActive),
		"joined_at": now,
	})
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"member_id": member.ID(), "created": true}), nil
}

func (p *set) rejectMemberRequest(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	a := backend.Row(args)
	inv, err := tx.Get(ctx, "member_invitations", a.String("invitation_id"))
	if err != nil {
		return nil, err
	}
	if inv.String("status") != string(enums.InvitationStatusPending) {
		return rejected("Request already processed"), nil
	}
	decision := backend.Row{"status": string(enums.InvitationStatusRejected)}
	if reason := strings.TrimSpace(a.String("reason")); reason != "" {
		decision["decision_reason"] = reason
	}
	if actor := a.String("actor_id"); actor != "" {
		decision["decided_by"] = actor
	}
	if _, err := tx.Update(ctx, "member_invitations", inv.ID(), decision); err != nil {
		return nil, err
	}
	return ok(nil), nil
}
