package procedures

import (
	"context"
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var taskListing = listing{
	enums:  []string{"status", "category"},
	search: []string{"title", "description", "location"},
}

// volunteerBoard returns tasks with their applications embedded and the
// denormalized slot counters.
func (p *set) volunteerBoard(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	tasks, err := all(ctx, tx, "volunteer_tasks")
	if err != nil {
		return nil, err
	}
	applications, err := all(ctx, tx, "volunteer_applications")
	if err != nil {
		return nil, err
	}
	byTask := map[string][]backend.Row{}
	for _, app := range applications {
		byTask[app.String("task_id")] = append(byTask[app.String("task_id")], app)
	}
	counts := countBy(applications, "task_id", "status")

	rows := make([]backend.Row, 0, len(tasks))
	for _, task := range tasks {
		apps := byTask[task.ID()]
		if apps == nil {
			apps = []backend.Row{}
		}
		rows = append(rows, task.Merge(backend.Row{
			"filled_slots":         counts[task.ID()][string(enums.ApplicationStatusApproved)],
			"pending_applications": counts[task.ID()][string(enums.ApplicationStatusPending)],
			"applications":         apps,
		}))
	}
	return taskListing.envelope(rows, backend.Row(args)), nil
}

// approveVolunteerApplication fills one slot of the task. The task moves to
// assigned once every slot is filled.
func (p *set) approveVolunteerApplication(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	a := backend.Row(args)
	app, err := tx.Get(ctx, "volunteer_applications", a.String("application_id"))
	if err != nil {
		return nil, err
	}
	if app.String("status") != string(enums.ApplicationStatusPending) {
		return rejected("Application already processed"), nil
	}
	task, err := tx.Get(ctx, "volunteer_tasks", app.String("task_id"))
	if err != nil {
		return nil, err
	}
	status := task.String("status")
	if status == string(enums.TaskStatusCancelled) || status == string(enums.TaskStatusCompleted) {
		return rejected("Task is no longer accepting volunteers"), nil
	}
	approved, err := all(ctx, tx, "volunteer_applications",
		backend.Eq("task_id", task.ID()),
		backend.Eq("status", string(enums.ApplicationStatusApproved)),
	)
	if err != nil {
		return nil, err
	}
	slots := task.Int("slots")
	if len(approved) >= slots {
		return rejected("Task is already full"), nil
	}

	if _, err := tx.Update(ctx, "volunteer_applications", app.ID(), backend.Row{
		"status": string(enums.ApplicationStatusApproved),
	}); err != nil {
		return nil, err
	}
	filled := len(approved) + 1
	if filled >= slots && status == string(enums.TaskStatusOpen) {
		if _, err := tx.Update(ctx, "volunteer_tasks", task.ID(), backend.Row{
			"status": string(enums.TaskStatusAssigned),
		}); err != nil {
			return nil, err
		}
	}
	return ok(map[string]any{"filled_slots": filled}), nil
}

func (p *set) rejectVolunteerApplication(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	a := backend.Row(args)
	app, err := tx.Get(ctx, "volunteer_applications", a.String("application_id"))
	if err != nil {
		return nil, err
	}
	if app.String("status") != string(enums.ApplicationStatusPending) {
		return rejected("Application already processed"), nil
	}
	patch := backend.Row{"status": string(enums.ApplicationStatusRejected)}
	if reason := strings.TrimSpace(a.String("reason")); reason != "" {
		patch["note"] = reason
	}
	if _, err := tx.Update(ctx, "volunteer_applications", app.ID(), patch); err != nil {
		return nil, err
	}
	return ok(nil), nil
}
