package main

import (
	"context"
	"fmt"

	"github.com/msa-portal/portal-backend/internal/cron"
	"github.com/msa-portal/portal-backend/internal/events"
	"github.com/msa-portal/portal-backend/internal/members"
	"github.com/msa-portal/portal-backend/internal/messages"
	"github.com/msa-portal/portal-backend/internal/monitoring"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/internal/volunteers"
)

type closingView interface {
	cron.Refresher
	Close()
}

// openViews mounts one long-lived view per resource for the warm job.
func openViews(ctx context.Context, deps reconcile.Deps) (map[string]cron.Refresher, func(), error) {
	opened := map[string]closingView{}
	closeAll := func() {
		for _, v := range opened {
			v.Close()
		}
	}

	mounts := []struct {
		name string
		open func() (closingView, error)
	}{
		{"members", func() (closingView, error) { return members.NewService(ctx, members.ServiceParams{Deps: deps}) }},
		{"volunteers", func() (closingView, error) { return volunteers.NewService(ctx, volunteers.ServiceParams{Deps: deps}) }},
		{monitoring.Resource, func() (closingView, error) { return monitoring.NewService(ctx, monitoring.ServiceParams{Deps: deps}) }},
		{"messages", func() (closingView, error) { return messages.NewService(ctx, messages.ServiceParams{Deps: deps}) }},
		{"events", func() (closingView, error) { return events.NewService(ctx, events.ServiceParams{Deps: deps}) }},
	}

	views := make(map[string]cron.Refresher, len(mounts))
	for _, m := range mounts {
		view, err := m.open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("mount %s: %w", m.name, err)
		}
		opened[m.name] = view
		views[m.name] = view
	}
	return views, closeAll, nil
}
