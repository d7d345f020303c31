package messages

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

const (
	collectionMessages   = "messages"
	collectionRecipients = "message_recipients"
	collectionMembers    = "members"

	procDelivery = "get_messages_with_delivery"
	procSend     = "send_message"

	recipientPending = "pending"
	recipientSent    = "sent"
	recipientFailed  = "failed"
)

// Message is an outbound communication with its delivery counters.
type Message struct {
	ID             string              `json:"id"`
	Subject        string              `json:"subject"`
	Body           string              `json:"body"`
	Channel        string              `json:"channel"`
	Audience       string              `json:"audience"`
	Status         enums.MessageStatus `json:"status"`
	ScheduledAt    *time.Time          `json:"scheduled_at,omitempty"`
	SentAt         *time.Time          `json:"sent_at,omitempty"`
	CreatedBy      *string             `json:"created_by,omitempty"`
	AuthorName     string              `json:"author_name"`
	RecipientCount int                 `json:"recipient_count"`
	SentCount      int                 `json:"sent_count"`
	FailedCount    int                 `json:"failed_count"`
	PendingCount   int                 `json:"pending_count"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Editable reports whether the message can still change.
func (m Message) Editable() bool {
	return m.Status == enums.MessageStatusDraft || m.Status == enums.MessageStatusScheduled
}

// Stats summarize the communications view.
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	Recipients   int            `json:"recipients"`
	Delivered    int            `json:"delivered"`
	Failed       int            `json:"failed"`
	DeliveryRate int            `json:"delivery_rate"`
	Scheduled    int            `json:"scheduled"`
}

var fields = reconcile.Fields[Message]{
	Text: func(m Message) []string { return []string{m.Subject, m.Body, m.AuthorName} },
	Enum: map[string]func(Message) string{
		"status":   func(m Message) string { return string(m.Status) },
		"channel":  func(m Message) string { return m.Channel },
		"audience": func(m Message) string { return m.Audience },
	},
}

var columns = map[string]string{"status": "status", "channel": "channel", "audience": "audience"}

func fromRow(r backend.Row) Message {
	m := Message{
		ID:             r.ID(),
		Subject:        r.String("subject"),
		Body:           r.String("body"),
		Channel:        r.String("channel"),
		Audience:       r.String("audience"),
		Status:         enums.MessageStatus(r.String("status")),
		CreatedBy:      r.StringPtr("created_by"),
		AuthorName:     r.String("author_name"),
		RecipientCount: r.Int("recipient_count"),
		SentCount:      r.Int("sent_count"),
		FailedCount:    r.Int("failed_count"),
		PendingCount:   r.Int("pending_count"),
		CreatedAt:      r.Time(backend.FieldCreatedAt),
		UpdatedAt:      r.Time(backend.FieldUpdatedAt),
	}
	if m.AuthorName == "" {
		m.AuthorName = reconcile.Unknown
	}
	if m.Status == "" {
		m.Status = enums.MessageStatusDraft
	}
	if t, ok := r.TimePtr("scheduled_at"); ok {
		m.ScheduledAt = t
	}
	if t, ok := r.TimePtr("sent_at"); ok {
		m.SentAt = t
	}
	return m
}
