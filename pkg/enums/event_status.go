package enums

import "fmt"

// EventStatus captures where an event sits on the calendar.
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

var validEventStatuses = []EventStatus{
	EventStatusUpcoming,
	EventStatusOngoing,
	EventStatusCompleted,
	EventStatusCancelled,
}

// String implements fmt.Stringer.
func (e EventStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EventStatus.
func (e EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventStatus converts raw input into a EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}
