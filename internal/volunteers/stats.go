package volunteers

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var statusKeys = []string{
	string(enums.TaskStatusOpen),
	string(enums.TaskStatusAssigned),
	string(enums.TaskStatusInProgress),
	string(enums.TaskStatusCompleted),
	string(enums.TaskStatusCancelled),
}

// Derive computes the volunteer board statistics. Cancelled tasks do not
// count toward slots.
func Derive(records []Task, _ time.Time) Stats {
	s := Stats{
		Total:    len(records),
		ByStatus: reconcile.Counts(reconcile.CountBy(records, func(t Task) string { return string(t.Status) }), statusKeys...),
	}
	for _, t := range records {
		s.PendingApplications += t.PendingApplications
		if t.Status == enums.TaskStatusCancelled {
			continue
		}
		s.TotalSlots += t.Slots
		s.FilledSlots += t.FilledSlots
		s.OpenSlots += t.OpenSlots()
	}
	s.FillRate = reconcile.Rate(s.FilledSlots, s.TotalSlots)
	return s
}

func Export(s Stats) map[string]float64 {
	out := map[string]float64{
		"total":                float64(s.Total),
		"total_slots":          float64(s.TotalSlots),
		"filled_slots":         float64(s.FilledSlots),
		"open_slots":           float64(s.OpenSlots),
		"fill_rate":            float64(s.FillRate),
		"pending_applications": float64(s.PendingApplications),
	}
	for status, n := range s.ByStatus {
		out["status_"+status] = float64(n)
	}
	return out
}
