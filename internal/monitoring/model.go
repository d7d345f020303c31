package monitoring

import (
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	collectionLogs    = "system_logs"
	collectionMetrics = "system_metrics"

	procHealth = "get_system_health"
	procPurge  = "purge_system_logs"
)

// Health summarizes the system from recent logs.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// LogEntry is one system log line.
type LogEntry struct {
	ID        string         `json:"id"`
	Level     enums.LogLevel `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Resolved  bool           `json:"resolved"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsError reports whether the entry is error level or worse.
func (l LogEntry) IsError() bool {
	return l.Level == enums.LogLevelError || l.Level == enums.LogLevelCritical
}

// Metric is the latest sample of one named system metric.
type Metric struct {
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Unit       *string         `json:"unit,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Stats summarize the monitoring view.
type Stats struct {
	Total      int            `json:"total"`
	ByLevel    map[string]int `json:"by_level"`
	Errors     int            `json:"errors"`
	ErrorRate  int            `json:"error_rate"`
	Last24h    int            `json:"last_24h"`
	Unresolved int            `json:"unresolved"`
	Health     Health         `json:"health"`
}

var fields = reconcile.Fields[LogEntry]{
	Text: func(l LogEntry) []string { return []string{l.Message, l.Source} },
	Enum: map[string]func(LogEntry) string{
		"level":  func(l LogEntry) string { return string(l.Level) },
		"source": func(l LogEntry) string { return l.Source },
	},
}

var logColumns = map[string]string{"level": "level", "source": "source"}

func logFromRow(r backend.Row) LogEntry {
	level := enums.LogLevel(strings.ToLower(r.String("level")))
	if !level.IsValid() {
		level = enums.LogLevelInfo
	}
	return LogEntry{
		ID:        r.ID(),
		Level:     level,
		Source:    r.String("source"),
		Message:   r.String("message"),
		Resolved:  r.Bool("resolved"),
		CreatedAt: r.Time(backend.FieldCreatedAt),
		UpdatedAt: r.Time(backend.FieldUpdatedAt),
	}
}

func metricFromRow(r backend.Row) Metric {
	return Metric{
		Name:       r.String("name"),
		Value:      r.Decimal("value"),
		Unit:       r.StringPtr("unit"),
		RecordedAt: r.Time("recorded_at"),
	}
}
