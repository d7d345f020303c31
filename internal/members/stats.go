package members

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

const newMemberWindow = 7 * 24 * time.Hour

var (
	statusKeys = []string{
		string(enums.MemberStatusActive),
		string(enums.MemberStatusInactive),
		string(enums.MemberStatusAlumni),
		string(enums.MemberStatusInvited),
		string(enums.MemberStatusPending),
		string(enums.MemberStatusSuspended),
	}
	roleKeys = []string{
		string(enums.MemberRoleMember),
		string(enums.MemberRoleVolunteer),
		string(enums.MemberRoleModerator),
		string(enums.MemberRoleAdmin),
	}
)

// Derive computes the members statistics.
func Derive(records []Member, now time.Time) Stats {
	byStatus := reconcile.Counts(reconcile.CountBy(records, func(m Member) string { return string(m.Status) }), statusKeys...)
	byRole := reconcile.Counts(reconcile.CountBy(records, func(m Member) string { return string(m.Role) }), roleKeys...)
	return Stats{
		Total:              len(records),
		ByStatus:           byStatus,
		ByRole:             byRole,
		NewThisWeek:        reconcile.WithinWindow(records, joinedAt, now, newMemberWindow),
		ActiveRate:         reconcile.Rate(byStatus[string(enums.MemberStatusActive)], len(records)),
		PendingInvitations: reconcile.CountWhere(records, Member.IsInvitation),
	}
}

func joinedAt(m Member) time.Time {
	if m.JoinedAt != nil {
		return *m.JoinedAt
	}
	return m.CreatedAt
}

// Export flattens the statistics into gauges.
func Export(s Stats) map[string]float64 {
	out := map[string]float64{
		"total":               float64(s.Total),
		"new_this_week":       float64(s.NewThisWeek),
		"active_rate":         float64(s.ActiveRate),
		"pending_invitations": float64(s.PendingInvitations),
	}
	for status, n := range s.ByStatus {
		out["status_"+status] = float64(n)
	}
	return out
}
