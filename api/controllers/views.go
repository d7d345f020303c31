package controllers

import (
	"context"
	"net/http"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

// Views opens request-scoped resource views. Every view shares the
// process-wide dependencies; notifications are also captured per request so
// the handler can return the one its mutation produced.
type Views struct {
	Deps   reconcile.Deps
	Logger *logger.Logger
}

func (v *Views) deps() (reconcile.Deps, *notifications.Recorder) {
	rec := &notifications.Recorder{}
	deps := v.Deps
	if deps.Logger == nil {
		deps.Logger = v.Logger
	}
	if deps.Sink != nil {
		deps.Sink = notifications.Fanout{deps.Sink, rec}
	} else {
		deps.Sink = rec
	}
	return deps, rec
}

type refresher interface {
	Refresh(ctx context.Context) error
}

// MutationResponse is returned by every state-changing route.
type MutationResponse[R any, T any, S any] struct {
	Result       R                           `json:"result,omitempty"`
	Snapshot     reconcile.Snapshot[T, S]    `json:"snapshot"`
	Notification *notifications.Notification `json:"notification,omitempty"`
}

// refresh loads svc and writes the error response when that fails. Mutation
// handlers load first so preconditions see the current collection.
func refresh(w http.ResponseWriter, r *http.Request, logg *logger.Logger, svc refresher) bool {
	if err := svc.Refresh(r.Context()); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return false
	}
	return true
}

func writeMutation[R any, T any, S any](w http.ResponseWriter, r *http.Request, logg *logger.Logger, status int, result R, err error, snap reconcile.Snapshot[T, S], rec *notifications.Recorder) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	out := MutationResponse[R, T, S]{Result: result, Snapshot: snap, Notification: last(rec)}
	responses.WriteSuccessStatus(w, status, out)
}

func last(rec *notifications.Recorder) *notifications.Notification {
	if rec == nil {
		return nil
	}
	if n, ok := rec.Last(); ok {
		return &n
	}
	return nil
}

type deleted struct {
	ID string `json:"id"`
}
