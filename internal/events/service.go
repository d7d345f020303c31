package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

// Resource is the name event views are registered under.
const Resource = "events"

// Service is the events calendar with registration and attendance.
type Service interface {
	Refresh(ctx context.Context) error
	Snapshot() reconcile.Snapshot[Event, Stats]
	Filter(c reconcile.Criteria) []Event
	SetQuery(q reconcile.Query)
	Create(ctx context.Context, in *EventInput) (*Event, error)
	Update(ctx context.Context, id string, in *EventPatch) (*Event, error)
	Delete(ctx context.Context, id string) error
	Register(ctx context.Context, in *RegisterInput) (*Registration, error)
	MarkAttendance(ctx context.Context, registrationIDs []string) (*AttendanceResult, error)
	Close()
}

type ServiceParams struct {
	Deps  reconcile.Deps
	Query reconcile.Query
	Seed  []Event
}

type service struct {
	backend backend.Backend
	mounted *reconcile.Mounted[Event, Stats]
}

// NewService mounts an events view bound to ctx.
func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	if params.Deps.Backend == nil {
		return nil, errors.New("backend required")
	}
	seed := params.Seed
	if seed == nil {
		seed = DefaultSeed()
	}
	mounted, err := reconcile.Mount(ctx, params.Deps, reconcile.MountSpec[Event, Stats]{
		Resource:  Resource,
		Procedure: procedureTier(params.Deps.Backend),
		Join:      joinTier(params.Deps.Backend),
		Seed:      seed,
		Derive:    Derive,
		Fields:    fields,
		Query:     params.Query,
		Export:    Export,
	})
	if err != nil {
		return nil, err
	}
	return &service{backend: params.Deps.Backend, mounted: mounted}, nil
}

func (s *service) Refresh(ctx context.Context) error { return s.mounted.View.Refresh(ctx) }

func (s *service) Snapshot() reconcile.Snapshot[Event, Stats] { return s.mounted.View.Snapshot() }

func (s *service) Filter(c reconcile.Criteria) []Event { return s.mounted.View.Filter(c) }

func (s *service) SetQuery(q reconcile.Query) { s.mounted.View.SetQuery(q) }

func (s *service) Close() { s.mounted.Close() }

type EventInput struct {
	Title       string     `json:"title" validate:"required,min=3,max=160"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=4000"`
	Category    string     `json:"category" validate:"omitempty,max=60"`
	Location    *string    `json:"location,omitempty" validate:"omitempty,max=200"`
	Capacity    int        `json:"capacity" validate:"min=0,max=10000"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

func (in *EventInput) Normalize() {
	in.Title = reconcile.Trim(in.Title)
	in.Description = reconcile.TrimPtr(in.Description)
	in.Category = strings.ToLower(reconcile.Trim(in.Category))
	if in.Category == "" {
		in.Category = "general"
	}
	in.Location = reconcile.TrimPtr(in.Location)
}

func checkWindow(starts time.Time, ends *time.Time) error {
	if ends != nil && !starts.IsZero() && !ends.After(starts) {
		return pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at").
			WithDetails(map[string]string{"ends_at": "must be after starts_at"})
	}
	return nil
}

func (s *service) Create(ctx context.Context, in *EventInput) (*Event, error) {
	if in == nil {
		in = &EventInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Event]{
		Action:   "create",
		Subject:  "Event",
		Require:  reconcile.AdminOnly,
		Input:    in,
		Validate: func() error { return checkWindow(in.StartsAt, in.EndsAt) },
		Run: func(ctx context.Context, actor *backend.User) (*Event, error) {
			row := backend.Row{
				"title":      in.Title,
				"category":   in.Category,
				"status":     string(enums.EventStatusUpcoming),
				"capacity":   in.Capacity,
				"starts_at":  in.StartsAt.UTC(),
				"created_by": actor.ID,
			}
			if in.Description != nil {
				row["description"] = *in.Description
			}
			if in.Location != nil {
				row["location"] = *in.Location
			}
			if in.EndsAt != nil {
				row["ends_at"] = in.EndsAt.UTC()
			}
			out, err := s.backend.Insert(ctx, collectionEvents, row)
			if err != nil {
				return nil, err
			}
			e := fromRow(out)
			return &e, nil
		},
		Done: func(e *Event) string { return fmt.Sprintf("%q was added to the calendar", e.Title) },
	})
}

type EventPatch struct {
	Title       *string            `json:"title,omitempty" validate:"omitempty,min=3,max=160"`
	Description *string            `json:"description,omitempty" validate:"omitempty,max=4000"`
	Location    *string            `json:"location,omitempty" validate:"omitempty,max=200"`
	Status      *enums.EventStatus `json:"status,omitempty" validate:"omitempty,oneof=upcoming ongoing completed cancelled"`
	Capacity    *int               `json:"capacity,omitempty" validate:"omitempty,min=0,max=10000"`
	StartsAt    *time.Time         `json:"starts_at,omitempty"`
	EndsAt      *time.Time         `json:"ends_at,omitempty"`
}

func (in *EventPatch) Normalize() {
	if in.Title != nil {
		v := reconcile.Trim(*in.Title)
		in.Title = &v
	}
	in.Description = reconcile.TrimPtr(in.Description)
	in.Location = reconcile.TrimPtr(in.Location)
}

func (in *EventPatch) row() backend.Row {
	row := backend.Row{}
	if in.Title != nil {
		row["title"] = *in.Title
	}
	if in.Description != nil {
		row["description"] = *in.Description
	}
	if in.Location != nil {
		row["location"] = *in.Location
	}
	if in.Status != nil {
		row["status"] = string(*in.Status)
	}
	if in.Capacity != nil {
		row["capacity"] = *in.Capacity
	}
	if in.StartsAt != nil {
		row["starts_at"] = in.StartsAt.UTC()
	}
	if in.EndsAt != nil {
		row["ends_at"] = in.EndsAt.UTC()
	}
	return row
}

func (s *service) Update(ctx context.Context, id string, in *EventPatch) (*Event, error) {
	if in == nil {
		in = &EventPatch{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Event]{
		Action:  "update",
		Subject: "Event",
		Require: reconcile.AdminOnly,
		Input:   in,
		Validate: func() error {
			if err := reconcile.RequireID("id", id); err != nil {
				return err
			}
			if len(in.row()) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
			}
			if in.StartsAt != nil {
				return checkWindow(*in.StartsAt, in.EndsAt)
			}
			return nil
		},
		Run: func(ctx context.Context, _ *backend.User) (*Event, error) {
			out, err := s.backend.Update(ctx, collectionEvents, reconcile.Trim(id), in.row())
			if err != nil {
				return nil, err
			}
			e := fromRow(out)
			return &e, nil
		},
		Done: func(e *Event) string { return fmt.Sprintf("%q was updated", e.Title) },
	})
}

func (s *service) Delete(ctx context.Context, id string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "delete",
		Subject:  "Event",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Optimistic: func() {
			target := reconcile.Trim(id)
			s.mounted.View.Patch(func(records []Event) []Event {
				out := records[:0]
				for _, e := range records {
					if e.ID != target {
						out = append(out, e)
					}
				}
				return out
			})
		},
		Run: func(ctx context.Context, _ *backend.User) (struct{}, error) {
			return struct{}{}, s.backend.Delete(ctx, collectionEvents, reconcile.Trim(id))
		},
		Done: func(struct{}) string { return "Event removed from the calendar" },
	})
	return err
}

// RegisterInput reserves a seat for the signed-in caller.
type RegisterInput struct {
	EventID  string `json:"event_id" validate:"required"`
	FullName string `json:"full_name" validate:"omitempty,max=120"`
}

func (in *RegisterInput) Normalize() {
	in.EventID = reconcile.Trim(in.EventID)
	in.FullName = reconcile.Trim(in.FullName)
}

func (s *service) Register(ctx context.Context, in *RegisterInput) (*Registration, error) {
	if in == nil {
		in = &RegisterInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Registration]{
		Action:  "create",
		Subject: "Event registration",
		Require: reconcile.SignedIn,
		Input:   in,
		Run: func(ctx context.Context, actor *backend.User) (*Registration, error) {
			rows, _, err := s.backend.Query(ctx, collectionEvents, backend.QuerySpec{
				Filters: []backend.Filter{backend.Eq(backend.FieldID, in.EventID)},
				Limit:   1,
			})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Event not found")
			}
			event := fromRow(rows[0])
			if event.Status != enums.EventStatusUpcoming && event.Status != enums.EventStatusOngoing {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Registration is closed for this event")
			}
			if event.Capacity > 0 {
				_, active, err := s.backend.Query(ctx, collectionRegistrations, backend.QuerySpec{
					Filters: []backend.Filter{
						backend.Eq("event_id", event.ID),
						{Field: "status", Op: backend.OpNeq, Value: string(enums.RegistrationStatusCancelled)},
					},
				})
				if err != nil {
					return nil, err
				}
				if active >= event.Capacity {
					return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "This event is full")
				}
			}
			row := backend.Row{
				"event_id":  event.ID,
				"member_id": actor.ID,
				"email":     reconcile.NormalizeEmail(actor.Email),
				"status":    string(enums.RegistrationStatusRegistered),
			}
			if in.FullName != "" {
				row["full_name"] = in.FullName
			}
			out, err := s.backend.Insert(ctx, collectionRegistrations, row)
			if err != nil {
				return nil, err
			}
			reg := registrationFromRow(out)
			return &reg, nil
		},
		Done: func(*Registration) string { return "You're registered. See you there!" },
	})
}

// AttendanceResult reports what MarkAttendance changed.
type AttendanceResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (s *service) MarkAttendance(ctx context.Context, registrationIDs []string) (*AttendanceResult, error) {
	ids := make([]string, 0, len(registrationIDs))
	for _, id := range registrationIDs {
		if id = reconcile.Trim(id); id != "" {
			ids = append(ids, id)
		}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*AttendanceResult]{
		Action:  "mark",
		Subject: "Attendance",
		Require: reconcile.AdminOnly,
		Validate: func() error {
			if len(ids) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "registration_ids is required").
					WithDetails(map[string]string{"registration_ids": "is required"})
			}
			return nil
		},
		Run: func(ctx context.Context, actor *backend.User) (*AttendanceResult, error) {
			payload, err := s.backend.Call(ctx, procMark, map[string]any{
				"registration_ids": ids,
				"actor_id":         actor.ID,
			})
			if err != nil {
				return nil, err
			}
			if err := reconcile.CheckStatus(procMark, payload); err != nil {
				return nil, err
			}
			var out AttendanceResult
			if err := payload.Decode(&out); err != nil {
				return nil, err
			}
			return &out, nil
		},
		Done: func(r *AttendanceResult) string {
			if r.Skipped > 0 {
				return fmt.Sprintf("Marked %d attended, skipped %d cancelled", r.Updated, r.Skipped)
			}
			return fmt.Sprintf("Marked %d attended", r.Updated)
		},
	})
}
