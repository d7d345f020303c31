package cron

import (
	"context"
	"fmt"
	"sort"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"go.uber.org/multierr"
)

// Refresher reloads one resource view.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SnapshotWarmJobParams configure the snapshot warm-up job.
type SnapshotWarmJobParams struct {
	Logger *logger.Logger
	// Views maps a resource name to the view that reloads it.
	Views map[string]Refresher
	// Actor is the identity the reloads run as. Admin-only views need an admin.
	Actor *backend.User
}

// NewSnapshotWarmJob builds a job that reloads every view so the last-good
// snapshots used by the seed tier stay fresh.
func NewSnapshotWarmJob(params SnapshotWarmJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.Views) == 0 {
		return nil, fmt.Errorf("at least one view required")
	}
	names := make([]string, 0, len(params.Views))
	for name, view := range params.Views {
		if view == nil {
			return nil, fmt.Errorf("view %q is nil", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &snapshotWarmJob{
		logg:  params.Logger,
		views: params.Views,
		names: names,
		actor: params.Actor,
	}, nil
}

type snapshotWarmJob struct {
	logg  *logger.Logger
	views map[string]Refresher
	names []string
	actor *backend.User
}

func (j *snapshotWarmJob) Name() string { return "snapshot-warm" }

func (j *snapshotWarmJob) Run(ctx context.Context) error {
	if j.actor != nil {
		ctx = backend.WithUser(ctx, j.actor)
	}
	var errs error
	warmed := 0
	for _, name := range j.names {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		viewCtx := j.logg.WithResource(ctx, name)
		if err := j.views[name].Refresh(viewCtx); err != nil {
			j.logg.WarnErr(viewCtx, "snapshot warm failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		warmed++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"views_warmed": warmed,
		"views_failed": len(multierr.Errors(errs)),
	}), "snapshot warm complete")
	return errs
}
