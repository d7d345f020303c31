package procedures

import (
	"context"
	"sort"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
)

var logListing = listing{
	enums:  []string{"level", "source"},
	search: []string{"message", "source"},
}

// systemHealth returns the newest logs and the latest sample of every metric.
func (p *set) systemHealth(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	logs, err := all(ctx, tx, "system_logs")
	if err != nil {
		return nil, err
	}
	samples, err := all(ctx, tx, "system_metrics")
	if err != nil {
		return nil, err
	}
	out := logListing.envelope(logs, backend.Row(args))
	out["metrics"] = LatestMetrics(samples)
	return out, nil
}

// LatestMetrics keeps the most recent sample per metric name, sorted by name.
func LatestMetrics(samples []backend.Row) []backend.Row {
	latest := map[string]backend.Row{}
	for _, s := range samples {
		name := s.String("name")
		cur, seen := latest[name]
		if !seen || s.Time("recorded_at").After(cur.Time("recorded_at")) {
			latest[name] = s
		}
	}
	out := make([]backend.Row, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String("name") < out[j].String("name") })
	return out
}

// purgeSystemLogs deletes logs created before older_than. With resolved_only
// only resolved entries go. Without older_than every matching entry goes.
func (p *set) purgeSystemLogs(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	a := backend.Row(args)
	var filters []backend.Filter
	if a.Bool("resolved_only") {
		filters = append(filters, backend.Eq("resolved", true))
	}
	logs, err := all(ctx, tx, "system_logs", filters...)
	if err != nil {
		return nil, err
	}
	cutoff, bounded := a.TimePtr("older_than")
	deleted := 0
	for _, entry := range logs {
		if bounded && !entry.Time(backend.FieldCreatedAt).Before(*cutoff) {
			continue
		}
		if err := tx.Delete(ctx, "system_logs", entry.ID()); err != nil {
			return nil, err
		}
		deleted++
	}
	return ok(map[string]any{"deleted": deleted}), nil
}
