package messages

import (
	"time"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var statusKeys = []string{
	string(enums.MessageStatusDraft),
	string(enums.MessageStatusScheduled),
	string(enums.MessageStatusSent),
	string(enums.MessageStatusFailed),
}

// Derive computes the communications statistics. The delivery rate only
// considers recipients whose delivery has concluded.
func Derive(records []Message, _ time.Time) Stats {
	s := Stats{
		Total:    len(records),
		ByStatus: reconcile.Counts(reconcile.CountBy(records, func(m Message) string { return string(m.Status) }), statusKeys...),
	}
	for _, m := range records {
		s.Recipients += m.RecipientCount
		s.Delivered += m.SentCount
		s.Failed += m.FailedCount
	}
	s.DeliveryRate = reconcile.Rate(s.Delivered, s.Delivered+s.Failed)
	s.Scheduled = s.ByStatus[string(enums.MessageStatusScheduled)]
	return s
}

// Export flattens the statistics into gauges.
func Export(s Stats) map[string]float64 {
	out := map[string]float64{
		"total":         float64(s.Total),
		"recipients":    float64(s.Recipients),
		"delivered":     float64(s.Delivered),
		"failed":        float64(s.Failed),
		"delivery_rate": float64(s.DeliveryRate),
	}
	for status, n := range s.ByStatus {
		out["status_"+status] = float64(n)
	}
	return out
}
