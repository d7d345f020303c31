package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/api/validators"
	"github.com/msa-portal/portal-backend/internal/monitoring"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

var logMatchKeys = []string{"level", "source"}

// MonitoringPayload is the system health view.
type MonitoringPayload struct {
	Snapshot reconcile.Snapshot[monitoring.LogEntry, monitoring.Stats] `json:"snapshot"`
	Metrics  []monitoring.Metric                                      `json:"metrics"`
}

type clearResolvedRequest struct {
	OlderThan *time.Time `json:"older_than,omitempty"`
}

type clearResolvedResult struct {
	Deleted int `json:"deleted"`
}

func (v *Views) openMonitoring(w http.ResponseWriter, r *http.Request, q reconcile.Query) (monitoring.Service, *notifications.Recorder, bool) {
	deps, rec := v.deps()
	svc, err := monitoring.NewService(r.Context(), monitoring.ServiceParams{Deps: deps, Query: q})
	if err != nil {
		responses.WriteError(r.Context(), v.Logger, w, err)
		return nil, nil, false
	}
	return svc, rec, true
}

// MonitoringOverview returns recent system logs, their statistics and the
// latest system metrics. Admin only.
func MonitoringOverview(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := validators.ParseListQuery(r, logMatchKeys...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if r.URL.Query().Get("limit") == "" {
			q.Page.Limit = 0
		}
		svc, _, ok := views.openMonitoring(w, r, q)
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		responses.WriteSuccess(w, MonitoringPayload{Snapshot: svc.Snapshot(), Metrics: svc.Metrics()})
	}
}

func MonitoringRecordLog(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in monitoring.LogInput
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMonitoring(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		entry, err := svc.RecordLog(r.Context(), &in)
		writeMutation(w, r, logg, http.StatusCreated, entry, err, svc.Snapshot(), rec)
	}
}

func MonitoringResolve(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, rec, ok := views.openMonitoring(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.Resolve(r.Context(), chi.URLParam(r, "logID"))
		writeMutation(w, r, logg, http.StatusOK, struct{}{}, err, svc.Snapshot(), rec)
	}
}

func MonitoringDeleteLog(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "logID")
		svc, rec, ok := views.openMonitoring(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		err := svc.DeleteLog(r.Context(), id)
		writeMutation(w, r, logg, http.StatusOK, deleted{ID: id}, err, svc.Snapshot(), rec)
	}
}

// MonitoringClearResolved purges resolved logs, optionally only those
// created before older_than.
func MonitoringClearResolved(views *Views, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body clearResolvedRequest
		if err := validators.DecodeOptionalJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		svc, rec, ok := views.openMonitoring(w, r, reconcile.Query{})
		if !ok {
			return
		}
		defer svc.Close()
		if !refresh(w, r, logg, svc) {
			return
		}
		n, err := svc.ClearResolved(r.Context(), body.OlderThan)
		writeMutation(w, r, logg, http.StatusOK, clearResolvedResult{Deleted: n}, err, svc.Snapshot(), rec)
	}
}
