package procedures

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var eventListing = listing{
	enums:  []string{"status", "category"},
	search: []string{"title", "description", "location"},
}

func (p *set) eventsWithAttendance(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	events, err := all(ctx, tx, "events")
	if err != nil {
		return nil, err
	}
	registrations, err := all(ctx, tx, "event_registrations")
	if err != nil {
		return nil, err
	}
	counts := countBy(registrations, "event_id", "status")
	rows := make([]backend.Row, 0, len(events))
	for _, e := range events {
		c := counts[e.ID()]
		rows = append(rows, e.Merge(backend.Row{
			"registered_count": c[string(enums.RegistrationStatusRegistered)],
			"attended_count":   c[string(enums.RegistrationStatusAttended)],
			"cancelled_count":  c[string(enums.RegistrationStatusCancelled)],
		}))
	}
	return eventListing.envelope(rows, backend.Row(args)), nil
}

// markEventAttendance flags registrations as attended. Cancelled
// registrations are left alone and reported as skipped.
func (p *set) markEventAttendance(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	ids := backend.Row(args).Strings("registration_ids")
	if len(ids) == 0 {
		return rejected("No registrations selected"), nil
	}
	updated, skipped := 0, 0
	for _, id := range ids {
		reg, err := tx.Get(ctx, "event_registrations", id)
		if err != nil {
			return nil, err
		}
		switch reg.String("status") {
		case string(enums.RegistrationStatusCancelled):
			skipped++
			continue
		case string(enums.RegistrationStatusAttended):
			continue
		}
		if _, err := tx.Update(ctx, "event_registrations", id, backend.Row{
			"status": string(enums.RegistrationStatusAttended),
		}); err != nil {
			return nil, err
		}
		updated++
	}
	return ok(map[string]any{"updated": updated, "skipped": skipped}), nil
}
