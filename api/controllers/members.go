package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/api/validators"
	"github.com/msa-portal/portal-backend/internal/members"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

var memberMatchKeys = []string{"status", "role"}

type approveMemberRequest struct {
	Role enums.MemberRole `json:"role,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (v *Views) openMembers(w http.ResponseWriter, r *http.Request, q reconcile.Query) (members.Service, *notifications.Recorder, bool) {
	deps, rec := v.deps()
	svc, err := members.NewService(r.Context(), members.ServiceParams{Deps: deps, Query: q})
	if err != nil {
		responses.WriteError(r.Context(), v.Logger, w, err)
		return nil, nil, false
	}
	return svc, rec, true
}

// MembersList returns the roster with pending invitations and statistics.
func MembersList(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := validators.ParseListQuery(r, memberMatchKeys...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, _, ok := views.openMembers(w, r, q)
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

func MembersCreate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in members.CreateInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMembers(w, r, reconcile.Query{})
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

func MembersInvite(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in members.InviteInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMembers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		m, err := svc.Invite(r.Context(), &in)
		writeMutation(w, r, logg, http.StatusCreated, m, err, svc.Snapshot(), rec)
	}
}

func MembersUpdate(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in members.UpdateInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMembers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		m, err := svc.Update(r.Context(), chi.URLParam(r, "memberID"), &in)
		writeMutation(w, r, logg, http.StatusOK, m, err, svc.Snapshot(), rec)
	}
}

func MembersDelete(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "memberID")
		svc, rec, ok := views.openMembers(w, r, reconcile.Query{})
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

func MembersApprove(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body approveMemberRequest
		if err := validators.DecodeOptionalJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMembers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.Approve(r.Context(), chi.URLParam(r, "invitationID"), body.Role)
		writeMutation(w, r, logg, http.StatusOK, struct{}{}, err, svc.Snapshot(), rec)
	}
}

func MembersReject(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body rejectRequest
		if err := validators.DecodeOptionalJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMembers(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.Reject(r.Context(), chi.URLParam(r, "invitationID"), body.Reason)
		writeMutation(w, r, logg, http.StatusOK, struct{}{}, err, svc.Snapshot(), rec)
	}
}
