package monitoring

import (
	"time"

	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// DefaultSeed is the static log feed served when the backend is unreachable.
func DefaultSeed() []LogEntry {
	at := func(day, hour int) time.Time { return time.Date(2025, time.October, day, hour, 0, 0, 0, time.UTC) }
	return []LogEntry{
		{ID: "seed-log-1", Level: enums.LogLevelInfo, Source: "auth", Message: "Nightly session cleanup finished", Resolved: true, CreatedAt: at(2, 3), UpdatedAt: at(2, 3)},
		{ID: "seed-log-2", Level: enums.LogLevelWarning, Source: "email", Message: "Delivery queue above 100 messages", CreatedAt: at(2, 9), UpdatedAt: at(2, 9)},
		{ID: "seed-log-3", Level: enums.LogLevelError, Source: "events", Message: "Calendar sync timed out", Resolved: true, CreatedAt: at(1, 18), UpdatedAt: at(1, 20)},
	}
}

// DefaultMetrics are served alongside DefaultSeed.
func DefaultMetrics() []Metric {
	pct := "percent"
	ms := "ms"
	at := time.Date(2025, time.October, 2, 9, 0, 0, 0, time.UTC)
	return []Metric{
		{Name: "api_latency_p95", Value: decimal.NewFromInt(240), Unit: &ms, RecordedAt: at},
		{Name: "cpu_usage", Value: decimal.RequireFromString("37.5"), Unit: &pct, RecordedAt: at},
		{Name: "db_connections", Value: decimal.NewFromInt(12), RecordedAt: at},
	}
}
