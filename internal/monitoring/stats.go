package monitoring

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

const (
	recentWindow = 24 * time.Hour

	degradedErrorRate = 10
	criticalErrorRate = 25
)

var levelKeys = []string{
	string(enums.LogLevelDebug),
	string(enums.LogLevelInfo),
	string(enums.LogLevelWarning),
	string(enums.LogLevelError),
	string(enums.LogLevelCritical),
}

// Derive computes the monitoring statistics.
func Derive(records []LogEntry, now time.Time) Stats {
	errorCount := reconcile.CountWhere(records, LogEntry.IsError)
	s := Stats{
		Total:      len(records),
		ByLevel:    reconcile.Counts(reconcile.CountBy(records, func(l LogEntry) string { return string(l.Level) }), levelKeys...),
		Errors:     errorCount,
		ErrorRate:  reconcile.Rate(errorCount, len(records)),
		Last24h:    reconcile.WithinWindow(records, func(l LogEntry) time.Time { return l.CreatedAt }, now, recentWindow),
		Unresolved: reconcile.CountWhere(records, func(l LogEntry) bool { return !l.Resolved && l.IsError() }),
	}
	s.Health = health(records, s, now)
	return s
}

// health is critical when an unresolved critical entry landed in the last
// day or errors dominate, degraded on a raised error rate or any open error.
func health(records []LogEntry, s Stats, now time.Time) Health {
	openCritical := reconcile.WithinWindow(records, func(l LogEntry) time.Time {
		if l.Resolved || l.Level != enums.LogLevelCritical {
			return time.Time{}
		}
		return l.CreatedAt
	}, now, recentWindow)
	switch {
	case openCritical > 0 || s.ErrorRate >= criticalErrorRate:
		return HealthCritical
	case s.ErrorRate >= degradedErrorRate || s.Unresolved > 0:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Export flattens the statistics into gauges. Health maps to 0 healthy,
// 1 degraded, 2 critical.
func Export(s Stats) map[string]float64 {
	out := map[string]float64{
		"total":      float64(s.Total),
		"errors":     float64(s.Errors),
		"error_rate": float64(s.ErrorRate),
		"last_24h":   float64(s.Last24h),
		"unresolved": float64(s.Unresolved),
	}
	switch s.Health {
	case HealthCritical:
		out["health"] = 2
	case HealthDegraded:
		out["health"] = 1
	default:
		out["health"] = 0
	}
	for level, n := range s.ByLevel {
		out["level_"+level] = float64(n)
	}
	return out
}
