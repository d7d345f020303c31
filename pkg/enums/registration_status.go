package enums

import "fmt"

// RegistrationStatus captures a member's registration to an event.
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusAttended   RegistrationStatus = "attended"
	RegistrationStatusCancelled  RegistrationStatus = "cancelled"
)

var validRegistrationStatuses = []RegistrationStatus{
	RegistrationStatusRegistered,
	RegistrationStatusAttended,
	RegistrationStatusCancelled,
}

// String implements fmt.Stringer.
func (r RegistrationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RegistrationStatus.
func (r RegistrationStatus) IsValid() bool {
	for _, candidate := range validRegistrationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRegistrationStatus converts raw input into a RegistrationStatus.
func ParseRegistrationStatus(value string) (RegistrationStatus, error) {
	for _, candidate := range validRegistrationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid registration status %q", value)
}
