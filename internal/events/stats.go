package events

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var statusKeys = []string{
	string(enums.EventStatusUpcoming),
	string(enums.EventStatusOngoing),
	string(enums.EventStatusCompleted),
	string(enums.EventStatusCancelled),
}

// Derive computes the events statistics. Upcoming only counts events that
// have not started yet.
func Derive(records []Event, now time.Time) Stats {
	s := Stats{
		Total:    len(records),
		ByStatus: reconcile.Counts(reconcile.CountBy(records, func(e Event) string { return string(e.Status) }), statusKeys...),
		Upcoming: reconcile.CountWhere(records, func(e Event) bool {
			return e.Status == enums.EventStatusUpcoming && e.StartsAt.After(now)
		}),
	}
	for _, e := range records {
		s.Registrations += e.Active()
		s.Attended += e.AttendedCount
	}
	s.AttendanceRate = reconcile.Rate(s.Attended, s.Registrations)
	return s
}

// Export flattens the statistics into gauges.
func Export(s Stats) map[string]float64 {
	out := map[string]float64{
		"total":           float64(s.Total),
		"upcoming":        float64(s.Upcoming),
		"registrations":   float64(s.Registrations),
		"attended":        float64(s.Attended),
		"attendance_rate": float64(s.AttendanceRate),
	}
	for status, n := range s.ByStatus {
		out["status_"+status] = float64(n)
	}
	return out
}
