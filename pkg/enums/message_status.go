package enums

import "fmt"

// MessageStatus captures the delivery state of an outbound communication.
type MessageStatus string

const (
	MessageStatusDraft     MessageStatus = "draft"
	MessageStatusScheduled MessageStatus = "scheduled"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
)

var validMessageStatuses = []MessageStatus{
	MessageStatusDraft,
	MessageStatusScheduled,
	MessageStatusSent,
	MessageStatusFailed,
}

// String implements fmt.Stringer.
func (m MessageStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MessageStatus.
func (m MessageStatus) IsValid() bool {
	for _, candidate := range validMessageStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMessageStatus converts raw input into a MessageStatus.
func ParseMessageStatus(value string) (MessageStatus, error) {
	for _, candidate := range validMessageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message status %q", value)
}
