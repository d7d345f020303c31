package volunteers

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

const (
	collectionTasks        = "volunteer_tasks"
	collectionApplications = "volunteer_applications"

	procBoard   = "get_volunteer_board"
	procApprove = "approve_volunteer_application"
	procReject  = "reject_volunteer_application"
)

// Application is one volunteer's request to fill a task slot.
type Application struct {
	ID        string                  `json:"id"`
	TaskID    string                  `json:"task_id"`
	MemberID  *string                 `json:"member_id,omitempty"`
	Email     string                  `json:"email"`
	FullName  string                  `json:"full_name"`
	Status    enums.ApplicationStatus `json:"status"`
	Note      *string                 `json:"note,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// Task is a volunteer opportunity with its denormalized slot counters.
type Task struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title"`
	Description         *string          `json:"description,omitempty"`
	Category            string           `json:"category"`
	Location            *string          `json:"location,omitempty"`
	Status              enums.TaskStatus `json:"status"`
	Slots               int              `json:"slots"`
	FilledSlots         int              `json:"filled_slots"`
	PendingApplications int              `json:"pending_applications"`
	StartsAt            *time.Time       `json:"starts_at,omitempty"`
	EndsAt              *time.Time       `json:"ends_at,omitempty"`
	CreatedBy           *string          `json:"created_by,omitempty"`
	Applications        []Application    `json:"applications"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// OpenSlots is the number of slots still available.
func (t Task) OpenSlots() int {
	if n := t.Slots - t.FilledSlots; n > 0 {
		return n
	}
	return 0
}

// Stats summarize the volunteer board.
type Stats struct {
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	TotalSlots          int            `json:"total_slots"`
	FilledSlots         int            `json:"filled_slots"`
	OpenSlots           int            `json:"open_slots"`
	FillRate            int            `json:"fill_rate"`
	PendingApplications int            `json:"pending_applications"`
}

var fields = reconcile.Fields[Task]{
	Text: func(t Task) []string {
		out := []string{t.Title, t.Category}
		if t.Description != nil {
			out = append(out, *t.Description)
		}
		if t.Location != nil {
			out = append(out, *t.Location)
		}
		return out
	},
	Enum: map[string]func(Task) string{
		"status":   func(t Task) string { return string(t.Status) },
		"category": func(t Task) string { return t.Category },
	},
}

func taskFromRow(r backend.Row) Task {
	t := Task{
		ID:                  r.ID(),
		Title:               r.String("title"),
		Description:         r.StringPtr("description"),
		Category:            r.String("category"),
		Location:            r.StringPtr("location"),
		Status:              enums.TaskStatus(r.String("status")),
		Slots:               r.Int("slots"),
		FilledSlots:         r.Int("filled_slots"),
		PendingApplications: r.Int("pending_applications"),
		CreatedBy:           r.StringPtr("created_by"),
		CreatedAt:           r.Time(backend.FieldCreatedAt),
		UpdatedAt:           r.Time(backend.FieldUpdatedAt),
	}
	if at, ok := r.TimePtr("starts_at"); ok {
		t.StartsAt = at
	}
	if at, ok := r.TimePtr("ends_at"); ok {
		t.EndsAt = at
	}
	t.Applications = reconcile.MapRows(r.Rows("applications"), applicationFromRow)
	return t
}

func applicationFromRow(r backend.Row) Application {
	name := r.String("full_name")
	if name == "" {
		name = reconcile.Unknown
	}
	return Application{
		ID:        r.ID(),
		TaskID:    r.String("task_id"),
		MemberID:  r.StringPtr("member_id"),
		Email:     r.String("email"),
		FullName:  name,
		Status:    enums.ApplicationStatus(r.String("status")),
		Note:      r.StringPtr("note"),
		CreatedAt: r.Time(backend.FieldCreatedAt),
	}
}
