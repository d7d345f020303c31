package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/api/validators"
	"github.com/msa-portal/portal-backend/internal/events"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

var eventMatchKeys = []string{"status", "category"}

type registerRequest struct {
	FullName string `json:"full_name,omitempty"`
}

type attendanceRequest struct {
	RegistrationIDs []string `json:"registration_ids"`
}

func (v *Views) openEvents(w http.ResponseWriter, r *http.Request, q reconcile.Query) (events.Service, *notifications.Recorder, bool) {
	deps, rec := v.deps()
	svc, err := events.NewService(r.Context(), events.ServiceParams{Deps: deps, Query: q})
	if err != nil {
		responses.WriteError(r.Context(), v.Logger, w, err)
		return nil, nil, false
	}
	return svc, rec, true
}

// EventsList returns events with attendance counts and statistics.
func EventsList(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := validators.ParseListQuery(r, eventMatchKeys...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, _, ok := views.openEvents(w, r, q)
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

func EventsCreate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in events.EventInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openEvents(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		ev, err := svc.Create(r.Context(), &in)
		writeMutation(w, r, logg, http.StatusCreated, ev, err, svc.Snapshot(), rec)
	}
}

func EventsUpdate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in events.EventPatch
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openEvents(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		ev, err := svc.Update(r.Context(), chi.URLParam(r, "eventID"), &in)
		writeMutation(w, r, logg, http.StatusOK, ev, err, svc.Snapshot(), rec)
	}
}

func EventsDelete(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "eventID")
		svc, rec, ok := views.openEvents(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.Delete(r.Context(), id)
		writeMutation(w, r, logg, http.StatusOK, deleted{ID: id}, err, svc.Snapshot(), rec)
	}
}

// EventsRegister signs the caller up for the event in the path.
func EventsRegister(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerRequest
		if err := validators.DecodeOptionalJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openEvents(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		reg, err := svc.Register(r.Context(), &events.RegisterInput{EventID: chi.URLParam(r, "eventID"), FullName: body.FullName})
		writeMutation(w, r, logg, http.StatusCreated, reg, err, svc.Snapshot(), rec)
	}
}

// EventsMarkAttendance checks in a batch of registrations.
func EventsMarkAttendance(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body attendanceRequest
		if err := validators.DecodeJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openEvents(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		res, err := svc.MarkAttendance(r.Context(), body.RegistrationIDs)
		writeMutation(w, r, logg, http.StatusOK, res, err, svc.Snapshot(), rec)
	}
}
