package members

import (
	"context"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

func procedureTier(b backend.Backend) reconcile.Fetcher[Member] {
	return reconcile.ProcedureFetcher(b, procOverview, reconcile.QueryArgs, fromRow)
}

// joinTier reads members and pending invitations separately and merges them
// locally.
func joinTier(b backend.Backend) reconcile.Fetcher[Member] {
	return func(ctx context.Context, q reconcile.Query) reconcile.Result[Member] {
		memberRows, _, err := b.Query(ctx, collectionMembers, backend.QuerySpec{
			Order: []backend.Order{{Field: backend.FieldCreatedAt, Desc: true}},
		})
		if err != nil {
			return reconcile.FromError[Member](err)
		}
		invitationRows, _, err := b.Query(ctx, collectionInvitations, backend.QuerySpec{
			Filters: []backend.Filter{backend.Eq("status", string(enums.InvitationStatusPending))},
			Order:   []backend.Order{{Field: backend.FieldCreatedAt, Desc: true}},
		})
		if err != nil {
			return reconcile.FromError[Member](err)
		}

		byID := reconcile.IndexBy(memberRows, backend.FieldID)
		byUser := reconcile.IndexBy(memberRows, "user_id")
		invitations := make([]Member, 0, len(invitationRows))
		for _, r := range invitationRows {
			inviterID := r.String("invited_by")
			inviter := reconcile.Lookup(byID, inviterID, "full_name")
			if inviter == reconcile.Unknown {
				inviter = reconcile.Lookup(byUser, inviterID, "full_name")
			}
			invitations = append(invitations, fromInvitation(r, inviter))
		}

		merged := Merge(reconcile.MapRows(memberRows, fromRow), invitations)
		page := reconcile.LocalPage(merged, q, fields)
		return reconcile.Ok(page.Records, page.Total)
	}
}

// Merge combines members with pending invitations. An invitation whose email
// already belongs to a member is dropped in favor of the member.
func Merge(members, invitations []Member) []Member {
	out := make([]Member, 0, len(members)+len(invitations))
	seen := make(map[string]bool, len(members)+len(invitations))
	for _, m := range members {
		seen[strings.ToLower(m.Email)] = true
		out = append(out, m)
	}
	for _, inv := range invitations {
		key := strings.ToLower(inv.Email)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inv)
	}
	return out
}
