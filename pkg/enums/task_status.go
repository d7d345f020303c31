package enums

import "fmt"

// TaskStatus captures the lifecycle of a volunteer task.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

var validTaskStatuses = []TaskStatus{
	TaskStatusOpen,
	TaskStatusAssigned,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusCancelled,
}

// String implements fmt.Stringer.
func (t TaskStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TaskStatus.
func (t TaskStatus) IsValid() bool {
	for _, candidate := range validTaskStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTaskStatus converts raw input into a TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, error) {
	for _, candidate := range validTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task status %q", value)
}
