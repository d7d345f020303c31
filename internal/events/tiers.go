package events

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

func procedureTier(b backend.Backend) reconcile.Fetcher[Event] {
	return reconcile.ProcedureFetcher(b, procAttendance, reconcile.QueryArgs, fromRow)
}

func joinTier(b backend.Backend) reconcile.Fetcher[Event] {
	return func(ctx context.Context, q reconcile.Query) reconcile.Result[Event] {
		rows, total, err := b.Query(ctx, collectionEvents, reconcile.QuerySpecFor(q, columns, "title"))
		if err != nil {
			return reconcile.FromError[Event](err)
		}
		if len(rows) == 0 {
			return reconcile.Ok([]Event{}, total)
		}
		ids := make([]any, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID())
		}
		registrations, _, err := b.Query(ctx, collectionRegistrations, backend.QuerySpec{
			Filters: []backend.Filter{backend.In("event_id", ids...)},
		})
		if err != nil {
			return reconcile.FromError[Event](err)
		}
		byEvent := reconcile.IndexBy(registrations, "event_id")
		out := make([]Event, 0, len(rows))
		for _, r := range rows {
			e := fromRow(r)
			for _, reg := range byEvent[e.ID] {
				switch enums.RegistrationStatus(reg.String("status")) {
				case enums.RegistrationStatusAttended:
					e.AttendedCount++
				case enums.RegistrationStatusCancelled:
					e.CancelledCount++
				default:
					e.RegisteredCount++
				}
			}
			out = append(out, e)
		}
		return reconcile.Ok(out, total)
	}
}
