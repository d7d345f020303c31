package messages

import (
	"time"

	"github.com/msa-portal/portal-backend/pkg/enums"
)

// DefaultSeed is the static outbox served when the backend is unreachable.
func DefaultSeed() []Message {
	at := func(day int) time.Time { return time.Date(2025, time.September, day, 16, 0, 0, 0, time.UTC) }
	sent := at(12)
	scheduled := at(30)
	return []Message{
		{
			ID: "seed-message-1", Subject: "Welcome back!", Body: "Our first general meeting is this Friday after Jummah.",
			Channel: "email", Audience: "all", Status: enums.MessageStatusSent, SentAt: &sent,
			AuthorName: "Aisha Rahman", RecipientCount: 120, SentCount: 117, FailedCount: 3,
			CreatedAt: at(11), UpdatedAt: at(12),
		},
		{
			ID: "seed-message-2", Subject: "Volunteers needed for iftar", Body: "Sign up on the volunteer board.",
			Channel: "email", Audience: "volunteers", Status: enums.MessageStatusScheduled, ScheduledAt: &scheduled,
			AuthorName: "Aisha Rahman", RecipientCount: 35, PendingCount: 35,
			CreatedAt: at(20), UpdatedAt: at(20),
		},
		{
			ID: "seed-message-3", Subject: "Board election results", Body: "Draft announcement.",
			Channel: "announcement", Audience: "all", Status: enums.MessageStatusDraft,
			AuthorName: "Yusuf Okafor", CreatedAt: at(25), UpdatedAt: at(25),
		},
	}
}
