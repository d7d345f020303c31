package enums

import "fmt"

// NotificationKind is the tone of a user-facing notification emitted after a mutation.
type NotificationKind string

const (
	NotificationKindSuccess NotificationKind = "success"
	NotificationKindError   NotificationKind = "error"
	NotificationKindInfo    NotificationKind = "info"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindSuccess,
	NotificationKindError,
	NotificationKindInfo,
}

func (n NotificationKind) String() string {
	return string(n)
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
