package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/api/validators"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/internal/volunteers"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

var taskMatchKeys = []string{"status", "category"}

func (v *Views) openVolunteers(w http.ResponseWriter, r *http.Request, q reconcile.Query) (volunteers.Service, *notifications.Recorder, bool) {
	deps, rec := v.deps()
	svc, err := volunteers.NewService(r.Context(), volunteers.ServiceParams{Deps: deps, Query: q})
	if err != nil {
		responses.WriteError(r.Context(), v.Logger, w, err)
		return nil, nil, false
	}
	return svc, rec, true
}

// VolunteerTasksList returns the volunteer board: tasks with their
// applications and statistics.
func VolunteerTasksList(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := validators.ParseListQuery(r, taskMatchKeys...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, _, ok := views.openVolunteers(w, r, q)
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

func VolunteerTasksCreate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in volunteers.TaskInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openVolunteers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		task, err := svc.CreateTask(r.Context(), &in)
		writeMutation(w, r, logg, http.StatusCreated, task, err, svc.Snapshot(), rec)
	}
}

func VolunteerTasksUpdate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in volunteers.TaskPatch
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openVolunteers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		task, err := svc.UpdateTask(r.Context(), chi.URLParam(r, "taskID"), &in)
		writeMutation(w, r, logg, http.StatusOK, task, err, svc.Snapshot(), rec)
	}
}

func VolunteerTasksDelete(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "taskID")
		svc, rec, ok := views.openVolunteers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.DeleteTask(r.Context(), id)
		writeMutation(w, r, logg, http.StatusOK, deleted{ID: id}, err, svc.Snapshot(), rec)
	}
}

// VolunteerApply records the caller's application for a task.
func VolunteerApply(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in volunteers.ApplyInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openVolunteers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		app, err := svc.Apply(r.Context(), &in)
		writeMutation(w, r, logg, http.StatusCreated, app, err, svc.Snapshot(), rec)
	}
}

func VolunteerApprove(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, rec, ok := views.openVolunteers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.Approve(r.Context(), chi.URLParam(r, "applicationID"))
		writeMutation(w, r, logg, http.StatusOK, struct{}{}, err, svc.Snapshot(), rec)
	}
}

func VolunteerReject(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body rejectRequest
		if err := validators.DecodeOptionalJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openVolunteers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.Reject(r.Context(), chi.URLParam(r, "applicationID"), body.Reason)
		writeMutation(w, r, logg, http.StatusOK, struct{}{}, err, svc.Snapshot(), rec)
	}
}
