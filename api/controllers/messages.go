package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/api/validators"
	"github.com/msa-portal/portal-backend/internal/messages"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

var messageMatchKeys = []string{"status", "channel", "audience"}

type sendResult struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
}

func (v *Views) openMessages(w http.ResponseWriter, r *http.Request, q reconcile.Query) (messages.Service, *notifications.Recorder, bool) {
	deps, rec := v.deps()
	svc, err := messages.NewService(r.Context(), messages.ServiceParams{Deps: deps, Query: q})
	if err != nil {
		responses.WriteError(r.Context(), v.Logger, w, err)
		return nil, nil, false
	}
	return svc, rec, true
}

func MessagesList(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := validators.ParseListQuery(r, messageMatchKeys...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, _, ok := views.openMessages(w, r, q)
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

func MessagesCreate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in messages.MessageInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMessages(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		m, err := svc.Create(r.Context(), &in)
		writeMutation(w, r, logg, http.StatusCreated, m, err, svc.Snapshot(), rec)
	}
}

func MessagesUpdate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in messages.MessagePatch
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMessages(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		m, err := svc.Update(r.Context(), chi.URLParam(r, "messageID"), &in)
		writeMutation(w, r, logg, http.StatusOK, m, err, svc.Snapshot(), rec)
	}
}

func MessagesDelete(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "messageID")
		svc, rec, ok := views.openMessages(w, r, reconcile.Query{})
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

// MessagesSend delivers a draft or scheduled message to its recipients.
func MessagesSend(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "messageID")
		svc, rec, ok := views.openMessages(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		n, err := svc.Send(r.Context(), id)
		writeMutation(w, r, logg, http.StatusOK, sendResult{ID: id, Recipients: n}, err, svc.Snapshot(), rec)
	}
}
