package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msa-portal/portal-backend/api/responses"
	"github.com/msa-portal/portal-backend/internal/monitoring"
	"github.com/msa-portal/portal-backend/internal/reconcile"
)

type statusView interface {
	Snapshot() reconcile.Snapshot[monitoring.LogEntry, monitoring.Stats]
	Metrics() []monitoring.Metric
	AutoRefreshing() bool
}

type statusPayload struct {
	Health            monitoring.Health   `json:"health"`
	Stats             monitoring.Stats    `json:"stats"`
	Metrics           []monitoring.Metric `json:"metrics"`
	Tier              reconcile.TierName  `json:"tier,omitempty"`
	UsingFallbackData bool                `json:"using_fallback_data"`
	Error             string              `json:"error,omitempty"`
	AutoRefreshing    bool                `json:"auto_refreshing"`
}

func newHandler(view statusView, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		snap := view.Snapshot()
		payload := statusPayload{
			Health:            snap.Stats.Health,
			Stats:             snap.Stats,
			Metrics:           view.Metrics(),
			Tier:              snap.Tier,
			UsingFallbackData: snap.UsingFallbackData,
			Error:             snap.Error,
			AutoRefreshing:    view.AutoRefreshing(),
		}
		status := http.StatusOK
		if !payload.AutoRefreshing {
			status = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, status, payload)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
