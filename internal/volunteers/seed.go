package volunteers

import (
	"time"

	"github.com/msa-portal/portal-backend/pkg/enums"
)

// DefaultSeed is the static board served when the backend is unreachable.
func DefaultSeed() []Task {
	at := func(month time.Month, day, hour int) time.Time {
		return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
	}
	str := func(s string) *string { return &s }
	starts := at(time.October, 4, 17)
	return []Task{
		{
			ID: "seed-task-1", Title: "Community iftar setup", Category: "events",
			Description: str("Set up tables and serve food for the weekly iftar."),
			Location:    str("Student Union Ballroom"),
			Status:      enums.TaskStatusOpen, Slots: 6, FilledSlots: 2, PendingApplications: 1,
			StartsAt: &starts, Applications: []Application{},
			CreatedAt: at(time.September, 20, 10), UpdatedAt: at(time.September, 20, 10),
		},
		{
			ID: "seed-task-2", Title: "Food drive collection", Category: "outreach",
			Location: str("Library entrance"),
			Status:   enums.TaskStatusAssigned, Slots: 3, FilledSlots: 3,
			Applications: []Application{},
			CreatedAt:    at(time.September, 15, 9), UpdatedAt: at(time.September, 18, 9),
		},
		{
			ID: "seed-task-3", Title: "New student mentoring", Category: "education",
			Description: str("Pair with first-year students for the semester."),
			Status:      enums.TaskStatusInProgress, Slots: 10, FilledSlots: 7,
			Applications: []Application{},
			CreatedAt:    at(time.August, 28, 12), UpdatedAt: at(time.September, 2, 12),
		},
	}
}
