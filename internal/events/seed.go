package events

import (
	"time"

	"github.com/msa-portal/portal-backend/pkg/enums"
)

// DefaultSeed is the static calendar served when the backend is unreachable.
func DefaultSeed() []Event {
	at := func(month time.Month, day, hour int) time.Time {
		return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
	}
	str := func(s string) *string { return &s }
	return []Event{
		{
			ID: "seed-event-1", Title: "Welcome back dinner", Category: "social",
			Location: str("Student Union Ballroom"), Status: enums.EventStatusUpcoming,
			Capacity: 150, StartsAt: at(time.October, 10, 18), RegisteredCount: 84,
			CreatedAt: at(time.September, 1, 9), UpdatedAt: at(time.September, 1, 9),
		},
		{
			ID: "seed-event-2", Title: "Weekly halaqa", Category: "education",
			Description: str("Reading circle after Maghrib."), Location: str("Room 204"),
			Status: enums.EventStatusOngoing, StartsAt: at(time.September, 5, 19),
			RegisteredCount: 12, AttendedCount: 18,
			CreatedAt: at(time.August, 25, 9), UpdatedAt: at(time.September, 5, 21),
		},
		{
			ID: "seed-event-3", Title: "Charity 5K", Category: "outreach",
			Status: enums.EventStatusCompleted, Capacity: 200, StartsAt: at(time.September, 14, 8),
			AttendedCount: 96, CancelledCount: 7,
			CreatedAt: at(time.August, 1, 9), UpdatedAt: at(time.September, 14, 12),
		},
	}
}
