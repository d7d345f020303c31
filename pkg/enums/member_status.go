package enums

import "fmt"

// MemberStatus captures the lifecycle state of a portal member.
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusInactive  MemberStatus = "inactive"
	MemberStatusAlumni    MemberStatus = "alumni"
	MemberStatusInvited   MemberStatus = "invited"
	MemberStatusPending   MemberStatus = "pending"
	MemberStatusSuspended MemberStatus = "suspended"
)

var validMemberStatuses = []MemberStatus{
	MemberStatusActive,
	MemberStatusInactive,
	MemberStatusAlumni,
	MemberStatusInvited,
	MemberStatusPending,
	MemberStatusSuspended,
}

// String implements fmt.Stringer.
func (m MemberStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberStatus.
func (m MemberStatus) IsValid() bool {
	for _, candidate := range validMemberStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberStatus converts raw input into a MemberStatus.
func ParseMemberStatus(value string) (MemberStatus, error) {
	for _, candidate := range validMemberStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member status %q", value)
}
