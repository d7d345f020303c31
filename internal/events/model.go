package events

import (
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

const (
	collectionEvents        = "events"
	collectionRegistrations = "event_registrations"

	procAttendance = "get_events_with_attendance"
	procMark       = "mark_event_attendance"
)

// Event is one calendar entry with its registration counters. A zero
// Capacity means unlimited.
type Event struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     *string           `json:"description,omitempty"`
	Category        string            `json:"category"`
	Location        *string           `json:"location,omitempty"`
	Status          enums.EventStatus `json:"status"`
	Capacity        int               `json:"capacity"`
	StartsAt        time.Time         `json:"starts_at"`
	EndsAt          *time.Time        `json:"ends_at,omitempty"`
	CreatedBy       *string           `json:"created_by,omitempty"`
	RegisteredCount int               `json:"registered_count"`
	AttendedCount   int               `json:"attended_count"`
	CancelledCount  int               `json:"cancelled_count"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Active counts registrations that hold a seat.
func (e Event) Active() int {
	return e.RegisteredCount + e.AttendedCount
}

// Full reports whether a capped event has no seats left.
func (e Event) Full() bool {
	return e.Capacity > 0 && e.Active() >= e.Capacity
}

// Registration is one member's seat at an event.
type Registration struct {
	ID        string                   `json:"id"`
	EventID   string                   `json:"event_id"`
	MemberID  *string                  `json:"member_id,omitempty"`
	Email     string                   `json:"email"`
	FullName  string                   `json:"full_name"`
	Status    enums.RegistrationStatus `json:"status"`
	CreatedAt time.Time                `json:"created_at"`
}

// Stats summarize the events view.
type Stats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	Upcoming       int            `json:"upcoming"`
	Registrations  int            `json:"registrations"`
	Attended       int            `json:"attended"`
	AttendanceRate int            `json:"attendance_rate"`
}

var fields = reconcile.Fields[Event]{
	Text: func(e Event) []string {
		out := []string{e.Title}
		if e.Description != nil {
			out = append(out, *e.Description)
		}
		if e.Location != nil {
			out = append(out, *e.Location)
		}
		return out
	},
	Enum: map[string]func(Event) string{
		"status":   func(e Event) string { return string(e.Status) },
		"category": func(e Event) string { return e.Category },
	},
}

var columns = map[string]string{"status": "status", "category": "category"}

func fromRow(r backend.Row) Event {
	e := Event{
		ID:              r.ID(),
		Title:           r.String("title"),
		Description:     r.StringPtr("description"),
		Category:        strings.ToLower(r.String("category")),
		Location:        r.StringPtr("location"),
		Status:          enums.EventStatus(r.String("status")),
		Capacity:        r.Int("capacity"),
		StartsAt:        r.Time("starts_at"),
		CreatedBy:       r.StringPtr("created_by"),
		RegisteredCount: r.Int("registered_count"),
		AttendedCount:   r.Int("attended_count"),
		CancelledCount:  r.Int("cancelled_count"),
		CreatedAt:       r.Time(backend.FieldCreatedAt),
		UpdatedAt:       r.Time(backend.FieldUpdatedAt),
	}
	if e.Status == "" {
		e.Status = enums.EventStatusUpcoming
	}
	if t, ok := r.TimePtr("ends_at"); ok {
		e.EndsAt = t
	}
	return e
}

func registrationFromRow(r backend.Row) Registration {
	name := r.String("full_name")
	if name == "" {
		name = reconcile.Unknown
	}
	return Registration{
		ID:        r.ID(),
		EventID:   r.String("event_id"),
		MemberID:  r.StringPtr("member_id"),
		Email:     strings.ToLower(r.String("email")),
		FullName:  name,
		Status:    enums.RegistrationStatus(r.String("status")),
		CreatedAt: r.Time(backend.FieldCreatedAt),
	}
}
