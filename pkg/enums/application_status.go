package enums

import "fmt"

// ApplicationStatus captures a volunteer's application to a task.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusApproved  ApplicationStatus = "approved"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn ApplicationStatus = "withdrawn"
)

var validApplicationStatuses = []ApplicationStatus{
	ApplicationStatusPending,
	ApplicationStatusApproved,
	ApplicationStatusRejected,
	ApplicationStatusWithdrawn,
}

// String implements fmt.Stringer.
func (a ApplicationStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApplicationStatus.
func (a ApplicationStatus) IsValid() bool {
	for _, candidate := range validApplicationStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseApplicationStatus converts raw input into a ApplicationStatus.
func ParseApplicationStatus(value string) (ApplicationStatus, error) {
	for _, candidate := range validApplicationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid application status %q", value)
}
