package members

import (
	"time"

	"github.com/msa-portal/portal-backend/pkg/enums"
)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

// DefaultSeed is the static roster served when the backend is unreachable.
func DefaultSeed() []Member {
	at := func(day int) time.Time { return time.Date(2025, time.September, day, 9, 0, 0, 0, time.UTC) }
	return []Member{
		{
			ID: "seed-member-1", FullName: "Aisha Rahman", Email: "aisha.rahman@example.org",
			Role: enums.MemberRoleAdmin, Status: enums.MemberStatusActive,
			Major: strPtr("Computer Science"), GraduationYear: intPtr(2026),
			CreatedAt: at(1), UpdatedAt: at(1),
		},
		{
			ID: "seed-member-2", FullName: "Yusuf Okafor", Email: "yusuf.okafor@example.org",
			Role: enums.MemberRoleVolunteer, Status: enums.MemberStatusActive,
			Major: strPtr("Mechanical Engineering"), GraduationYear: intPtr(2027),
			CreatedAt: at(3), UpdatedAt: at(3),
		},
		{
			ID: "seed-member-3", FullName: "Maryam Siddiqui", Email: "maryam.siddiqui@example.org",
			Role: enums.MemberRoleMember, Status: enums.MemberStatusAlumni,
			Major: strPtr("Biology"), GraduationYear: intPtr(2024),
			CreatedAt: at(5), UpdatedAt: at(5),
		},
		{
			ID: "seed-invite-1", FullName: "Ibrahim Noor", Email: "ibrahim.noor@example.org",
			Role: enums.MemberRoleMember, Status: enums.MemberStatusInvited,
			InvitationID: "seed-invite-1", InvitedByName: "Aisha Rahman",
			CreatedAt: at(8), UpdatedAt: at(8),
		},
	}
}
