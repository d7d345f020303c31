package monitoring

import (
	"context"
	"sync"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/procedures"
	"github.com/msa-portal/portal-backend/internal/reconcile"
)

// metricCache holds the metric samples that arrived with the newest log
// page. It is written by whichever tier served the page.
type metricCache struct {
	mu      sync.RWMutex
	metrics []Metric
}

func (c *metricCache) set(m []Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append([]Metric(nil), m...)
}

func (c *metricCache) get() []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Metric(nil), c.metrics...)
}

// procedureTier reads logs and the latest metrics in one call.
func procedureTier(b backend.Backend, cache *metricCache) reconcile.Fetcher[LogEntry] {
	return func(ctx context.Context, q reconcile.Query) reconcile.Result[LogEntry] {
		payload, err := b.Call(ctx, procHealth, reconcile.QueryArgs(q))
		if err != nil {
			return reconcile.FromError[LogEntry](err)
		}
		rows, total, err := payload.DecodeRows()
		if err != nil {
			return reconcile.FromError[LogEntry](err)
		}
		var extra struct {
			Metrics []backend.Row `json:"metrics"`
		}
		if err := payload.Decode(&extra); err == nil {
			cache.set(reconcile.MapRows(extra.Metrics, metricFromRow))
		}
		return reconcile.Ok(reconcile.MapRows(rows, logFromRow), total)
	}
}

// joinTier pages the log table directly and reduces the metric samples to
// the newest one per name.
func joinTier(b backend.Backend, cache *metricCache) reconcile.Fetcher[LogEntry] {
	return func(ctx context.Context, q reconcile.Query) reconcile.Result[LogEntry] {
		rows, total, err := b.Query(ctx, collectionLogs, reconcile.QuerySpecFor(q, logColumns, "message"))
		if err != nil {
			return reconcile.FromError[LogEntry](err)
		}
		samples, _, err := b.Query(ctx, collectionMetrics, backend.QuerySpec{
			Order: []backend.Order{{Field: "recorded_at", Desc: true}},
		})
		if err != nil {
			return reconcile.FromError[LogEntry](err)
		}
		cache.set(reconcile.MapRows(procedures.LatestMetrics(samples), metricFromRow))
		return reconcile.Ok(reconcile.MapRows(rows, logFromRow), total)
	}
}
