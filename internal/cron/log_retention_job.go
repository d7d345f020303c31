package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/monitoring"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

const logRetentionDays = 30

// LogRetentionJobParams configure the system log retention job.
type LogRetentionJobParams struct {
	Logger  *logger.Logger
	Backend backend.Backend
	// Retention is measured in days; resolved entries older than it are purged.
	Retention int
	// IncludeUnresolved also purges unresolved entries past the cutoff.
	IncludeUnresolved bool
}

type purgeFunc func(ctx context.Context, b backend.Backend, resolvedOnly bool, olderThan *time.Time) (int, error)

// NewLogRetentionJob builds the job that trims system_logs.
func NewLogRetentionJob(params LogRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = logRetentionDays
	}
	return &logRetentionJob{
		logg:         params.Logger,
		backend:      params.Backend,
		retention:    retention,
		resolvedOnly: !params.IncludeUnresolved,
		purge:        monitoring.Purge,
		now:          time.Now,
	}, nil
}

type logRetentionJob struct {
	logg         *logger.Logger
	backend      backend.Backend
	retention    int
	resolvedOnly bool
	purge        purgeFunc
	now          func() time.Time
}

func (j *logRetentionJob) Name() string { return "system-log-retention" }

func (j *logRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.purge(ctx, j.backend, j.resolvedOnly, &cutoff)
	if err != nil {
		return fmt.Errorf("system log retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"resolved_only":  j.resolvedOnly,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "system log retention complete")
	return nil
}
