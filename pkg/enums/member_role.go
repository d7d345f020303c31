package enums

import "fmt"

// MemberRole represents a portal-wide permissions role.
type MemberRole string

const (
	MemberRoleMember    MemberRole = "member"
	MemberRoleVolunteer MemberRole = "volunteer"
	MemberRoleModerator MemberRole = "moderator"
	MemberRoleAdmin     MemberRole = "admin"
)

var validMemberRoles = []MemberRole{
	MemberRoleMember,
	MemberRoleVolunteer,
	MemberRoleModerator,
	MemberRoleAdmin,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// Rank orders roles by privilege; unknown roles rank below every known one.
func (m MemberRole) Rank() int {
	for i, candidate := range validMemberRoles {
		if candidate == m {
			return i + 1
		}
	}
	return 0
}

// AtLeast reports whether m grants every privilege of min.
func (m MemberRole) AtLeast(min MemberRole) bool {
	return m.Rank() > 0 && m.Rank() >= min.Rank()
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
