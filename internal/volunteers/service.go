package volunteers

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

// Resource is the name volunteer board views are registered under.
const Resource = "volunteer_tasks"

// Service is the volunteer board: tasks, their applications and the
// workflows that fill them.
type Service interface {
	Refresh(ctx context.Context) error
	Snapshot() reconcile.Snapshot[Task, Stats]
	Filter(c reconcile.Criteria) []Task
	SetQuery(q reconcile.Query)
	CreateTask(ctx context.Context, in *TaskInput) (*Task, error)
	UpdateTask(ctx context.Context, id string, in *TaskPatch) (*Task, error)
	DeleteTask(ctx context.Context, id string) error
	Apply(ctx context.Context, in *ApplyInput) (*Application, error)
	Approve(ctx context.Context, applicationID string) error
	Reject(ctx context.Context, applicationID, reason string) error
	Close()
}

type ServiceParams struct {
	Deps  reconcile.Deps
	Query reconcile.Query
	Seed  []Task
}

type service struct {
	backend backend.Backend
	mounted *reconcile.Mounted[Task, Stats]
}

// NewService mounts a volunteer board view bound to ctx.
func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	if params.Deps.Backend == nil {
		return nil, errors.New("backend required")
	}
	seed := params.Seed
	if seed == nil {
		seed = DefaultSeed()
	}
	mounted, err := reconcile.Mount(ctx, params.Deps, reconcile.MountSpec[Task, Stats]{
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

func (s *service) Snapshot() reconcile.Snapshot[Task, Stats] { return s.mounted.View.Snapshot() }

func (s *service) Filter(c reconcile.Criteria) []Task { return s.mounted.View.Filter(c) }

func (s *service) SetQuery(q reconcile.Query) { s.mounted.View.SetQuery(q) }

func (s *service) Close() { s.mounted.Close() }

// TaskInput creates a task.
type TaskInput struct {
	Title       string     `json:"title" validate:"required,min=3,max=160"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    string     `json:"category" validate:"omitempty,max=60"`
	Location    *string    `json:"location,omitempty" validate:"omitempty,max=200"`
	Slots       int        `json:"slots" validate:"required,min=1,max=500"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

func (in *TaskInput) Normalize() {
	in.Title = reconcile.Trim(in.Title)
	in.Description = reconcile.TrimPtr(in.Description)
	in.Category = strings.ToLower(reconcile.Trim(in.Category))
	if in.Category == "" {
		in.Category = "general"
	}
	in.Location = reconcile.TrimPtr(in.Location)
}

func checkWindow(starts, ends *time.Time) error {
	if starts != nil && ends != nil && !ends.After(*starts) {
		return pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at").
			WithDetails(map[string]string{"ends_at": "must be after starts_at"})
	}
	return nil
}

func (s *service) CreateTask(ctx context.Context, in *TaskInput) (*Task, error) {
	if in == nil {
		in = &TaskInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Task]{
		Action:   "create",
		Subject:  "Volunteer task",
		Require:  reconcile.AdminOnly,
		Input:    in,
		Validate: func() error { return checkWindow(in.StartsAt, in.EndsAt) },
		Run: func(ctx context.Context, actor *backend.User) (*Task, error) {
			row := backend.Row{
				"title":      in.Title,
				"category":   in.Category,
				"status":     string(enums.TaskStatusOpen),
				"slots":      in.Slots,
				"created_by": actor.ID,
			}
			setString(row, "description", in.Description)
			setString(row, "location", in.Location)
			setTime(row, "starts_at", in.StartsAt)
			setTime(row, "ends_at", in.EndsAt)
			out, err := s.backend.Insert(ctx, collectionTasks, row)
			if err != nil {
				return nil, err
			}
			t := taskFromRow(out)
			return &t, nil
		},
		Done: func(t *Task) string { return fmt.Sprintf("%q is open for volunteers", t.Title) },
	})
}

// TaskPatch is a partial task update.
type TaskPatch struct {
	Title       *string           `json:"title,omitempty" validate:"omitempty,min=3,max=160"`
	Description *string           `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    *string           `json:"category,omitempty" validate:"omitempty,max=60"`
	Location    *string           `json:"location,omitempty" validate:"omitempty,max=200"`
	Status      *enums.TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=open assigned in_progress completed cancelled"`
	Slots       *int              `json:"slots,omitempty" validate:"omitempty,min=1,max=500"`
	StartsAt    *time.Time        `json:"starts_at,omitempty"`
	EndsAt      *time.Time        `json:"ends_at,omitempty"`
}

func (in *TaskPatch) Normalize() {
	if in.Title != nil {
		v := reconcile.Trim(*in.Title)
		in.Title = &v
	}
	if in.Category != nil {
		v := strings.ToLower(reconcile.Trim(*in.Category))
		in.Category = &v
	}
	in.Description = reconcile.TrimPtr(in.Description)
	in.Location = reconcile.TrimPtr(in.Location)
}

func (in *TaskPatch) row() backend.Row {
	row := backend.Row{}
	setString(row, "title", in.Title)
	setString(row, "description", in.Description)
	setString(row, "category", in.Category)
	setString(row, "location", in.Location)
	if in.Status != nil {
		row["status"] = string(*in.Status)
	}
	if in.Slots != nil {
		row["slots"] = *in.Slots
	}
	setTime(row, "starts_at", in.StartsAt)
	setTime(row, "ends_at", in.EndsAt)
	return row
}

func (s *service) UpdateTask(ctx context.Context, id string, in *TaskPatch) (*Task, error) {
	if in == nil {
		in = &TaskPatch{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Task]{
		Action:  "update",
		Subject: "Volunteer task",
		Require: reconcile.AdminOnly,
		Input:   in,
		Validate: func() error {
			if err := reconcile.RequireID("id", id); err != nil {
				return err
			}
			if len(in.row()) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
			}
			return checkWindow(in.StartsAt, in.EndsAt)
		},
		Run: func(ctx context.Context, actor *backend.User) (*Task, error) {
			out, err := s.backend.Update(ctx, collectionTasks, reconcile.Trim(id), in.row())
			if err != nil {
				return nil, err
			}
			t := taskFromRow(out)
			return &t, nil
		},
		Done: func(t *Task) string { return fmt.Sprintf("%q was updated", t.Title) },
	})
}

func (s *service) DeleteTask(ctx context.Context, id string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "delete",
		Subject:  "Volunteer task",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Optimistic: func() {
			target := reconcile.Trim(id)
			s.mounted.View.Patch(func(records []Task) []Task {
				out := records[:0]
				for _, t := range records {
					if t.ID != target {
						out = append(out, t)
					}
				}
				return out
			})
		},
		Run: func(ctx context.Context, actor *backend.User) (struct{}, error) {
			return struct{}{}, s.backend.Delete(ctx, collectionTasks, reconcile.Trim(id))
		},
		Done: func(struct{}) string { return "Volunteer task removed" },
	})
	return err
}

// ApplyInput is a signed-in member's application for a task.
type ApplyInput struct {
	TaskID   string  `json:"task_id" validate:"required"`
	FullName string  `json:"full_name" validate:"omitempty,max=120"`
	Note     *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

func (in *ApplyInput) Normalize() {
	in.TaskID = reconcile.Trim(in.TaskID)
	in.FullName = reconcile.Trim(in.FullName)
	in.Note = reconcile.TrimPtr(in.Note)
}

func (s *service) Apply(ctx context.Context, in *ApplyInput) (*Application, error) {
	if in == nil {
		in = &ApplyInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Application]{
		Action:  "submit",
		Subject: "Volunteer application",
		Require: reconcile.SignedIn,
		Input:   in,
		Run: func(ctx context.Context, actor *backend.User) (*Application, error) {
			rows, _, err := s.backend.Query(ctx, collectionTasks, backend.QuerySpec{
				Filters: []backend.Filter{backend.Eq(backend.FieldID, in.TaskID)},
				Limit:   1,
			})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Volunteer task not found")
			}
			if rows[0].String("status") != string(enums.TaskStatusOpen) {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "This task is not accepting volunteers")
			}
			row := backend.Row{
				"task_id":   in.TaskID,
				"member_id": actor.ID,
				"email":     strings.ToLower(actor.Email),
				"status":    string(enums.ApplicationStatusPending),
			}
			if in.FullName != "" {
				row["full_name"] = in.FullName
			}
			setString(row, "note", in.Note)
			out, err := s.backend.Insert(ctx, collectionApplications, row)
			if err != nil {
				return nil, err
			}
			app := applicationFromRow(out)
			return &app, nil
		},
		Done: func(*Application) string { return "Thanks for volunteering! Your application is pending review" },
	})
}

func (s *service) Approve(ctx context.Context, applicationID string) error {
	return s.decide(ctx, "approve", procApprove, applicationID, "")
}

func (s *service) Reject(ctx context.Context, applicationID, reason string) error {
	return s.decide(ctx, "reject", procReject, applicationID, reason)
}

func (s *service) decide(ctx context.Context, action, procedure, applicationID, reason string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   action,
		Subject:  "Volunteer application",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("application_id", applicationID) },
		Run: func(ctx context.Context, actor *backend.User) (struct{}, error) {
			args := map[string]any{
				"application_id": reconcile.Trim(applicationID),
				"actor_id":       actor.ID,
			}
			if r := reconcile.Trim(reason); r != "" {
				args["reason"] = r
			}
			payload, err := s.backend.Call(ctx, procedure, args)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, reconcile.CheckStatus(procedure, payload)
		},
		Done: func(struct{}) string { return "Volunteer application " + pastTense(action) },
	})
	return err
}

func pastTense(action string) string {
	if strings.HasSuffix(action, "e") {
		return action + "d"
	}
	return action + "ed"
}

func setString(row backend.Row, field string, v *string) {
	if v != nil {
		row[field] = *v
	}
}

func setTime(row backend.Row, field string, v *time.Time) {
	if v != nil {
		row[field] = v.UTC()
	}
}
