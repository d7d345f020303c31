package members

import (
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

const (
	collectionMembers     = "members"
	collectionInvitations = "member_invitations"

	procOverview = "get_members_overview"
	procApprove  = "approve_member_request"
	procReject   = "reject_member_request"
)

// Member is one row of the members view. Pending invitations appear as
// members with status invited and InvitationID set.
type Member struct {
	ID             string             `json:"id"`
	UserID         *string            `json:"user_id,omitempty"`
	FullName       string             `json:"full_name"`
	Email          string             `json:"email"`
	Role           enums.MemberRole   `json:"role"`
	Status         enums.MemberStatus `json:"status"`
	Major          *string            `json:"major,omitempty"`
	GraduationYear *int               `json:"graduation_year,omitempty"`
	Phone          *string            `json:"phone,omitempty"`
	JoinedAt       *time.Time         `json:"joined_at,omitempty"`
	InvitationID   string             `json:"invitation_id,omitempty"`
	InvitedByName  string             `json:"invited_by_name,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// IsInvitation reports whether the record is a pending invitation.
func (m Member) IsInvitation() bool {
	return m.InvitationID != ""
}

// Stats summarize the members view.
type Stats struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"by_status"`
	ByRole             map[string]int `json:"by_role"`
	NewThisWeek        int            `json:"new_this_week"`
	ActiveRate         int            `json:"active_rate"`
	PendingInvitations int            `json:"pending_invitations"`
}

var fields = reconcile.Fields[Member]{
	Text: func(m Member) []string {
		out := []string{m.FullName, m.Email}
		if m.Major != nil {
			out = append(out, *m.Major)
		}
		return out
	},
	Enum: map[string]func(Member) string{
		"status": func(m Member) string { return string(m.Status) },
		"role":   func(m Member) string { return string(m.Role) },
	},
}

func fromRow(r backend.Row) Member {
	m := Member{
		ID:             r.ID(),
		UserID:         r.StringPtr("user_id"),
		FullName:       r.String("full_name"),
		Email:          strings.ToLower(r.String("email")),
		Role:           enums.MemberRole(r.String("role")),
		Status:         enums.MemberStatus(r.String("status")),
		Major:          r.StringPtr("major"),
		GraduationYear: r.IntPtr("graduation_year"),
		Phone:          r.StringPtr("phone"),
		InvitationID:   r.String("invitation_id"),
		InvitedByName:  r.String("invited_by_name"),
		CreatedAt:      r.Time(backend.FieldCreatedAt),
		UpdatedAt:      r.Time(backend.FieldUpdatedAt),
	}
	if m.Role == "" {
		m.Role = enums.MemberRoleMember
	}
	if t, ok := r.TimePtr("joined_at"); ok {
		m.JoinedAt = t
	}
	return m
}

func fromInvitation(r backend.Row, inviter string) Member {
	name := r.String("full_name")
	if name == "" {
		name = strings.ToLower(r.String("email"))
	}
	role := enums.MemberRole(r.String("role"))
	if role == "" {
		role = enums.MemberRoleMember
	}
	return Member{
		ID:            r.ID(),
		FullName:      name,
		Email:         strings.ToLower(r.String("email")),
		Role:          role,
		Status:        enums.MemberStatusInvited,
		InvitationID:  r.ID(),
		InvitedByName: inviter,
		CreatedAt:     r.Time(backend.FieldCreatedAt),
		UpdatedAt:     r.Time(backend.FieldUpdatedAt),
	}
}
