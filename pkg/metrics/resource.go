package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ResourceMetrics records how portal resource views load their collections.
type ResourceMetrics struct {
	refreshDuration *prometheus.HistogramVec
	refreshFailure  *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	fallback        *prometheus.GaugeVec
	stats           *prometheus.GaugeVec
}

// NewResourceMetrics registers the resource metrics on the provided registerer.
func NewResourceMetrics(reg prometheus.Registerer) *ResourceMetrics {
	if reg == nil {
		return &ResourceMetrics{}
	}
	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resource_refresh_duration_seconds",
		Help:    "Duration of resource collection reloads in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})
	refreshFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resource_refresh_failure",
		Help: "Resource reloads that produced no collection.",
	}, []string{"resource"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resource_tier_resolutions",
		Help: "Collections resolved per fallback tier.",
	}, []string{"resource", "tier"})
	fallback := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resource_using_fallback_data",
		Help: "1 when the resource is currently served from seed data.",
	}, []string{"resource"})
	stats := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resource_stat",
		Help: "Derived statistics of the most recent resource collection.",
	}, []string{"resource", "stat"})
	reg.MustRegister(refreshDuration, refreshFailure, resolutions, fallback, stats)
	return &ResourceMetrics{
		refreshDuration: refreshDuration,
		refreshFailure:  refreshFailure,
		resolutions:     resolutions,
		fallback:        fallback,
		stats:           stats,
	}
}

// ObserveRefresh records the duration of a reload for the named resource.
func (m *ResourceMetrics) ObserveRefresh(resource string, duration time.Duration) {
	if m == nil || m.refreshDuration == nil {
		return
	}
	m.refreshDuration.WithLabelValues(normalizeLabel(resource)).Observe(duration.Seconds())
}

// IncRefreshFailure counts a reload that surfaced an error.
func (m *ResourceMetrics) IncRefreshFailure(resource string) {
	if m == nil || m.refreshFailure == nil {
		return
	}
	m.refreshFailure.WithLabelValues(normalizeLabel(resource)).Inc()
}

// IncResolution counts which tier produced the collection.
func (m *ResourceMetrics) IncResolution(resource, tier string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(resource), normalizeLabel(tier)).Inc()
}

// SetFallback flags whether the resource currently serves seed data.
func (m *ResourceMetrics) SetFallback(resource string, active bool) {
	if m == nil || m.fallback == nil {
		return
	}
	value := 0.0
	if active {
		value = 1
	}
	m.fallback.WithLabelValues(normalizeLabel(resource)).Set(value)
}

// SetStats exports every numeric statistic of the resource as a gauge.
func (m *ResourceMetrics) SetStats(resource string, values map[string]float64) {
	if m == nil || m.stats == nil {
		return
	}
	for name, value := range values {
		m.stats.WithLabelValues(normalizeLabel(resource), normalizeLabel(name)).Set(value)
	}
}
