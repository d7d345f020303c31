package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// NewTicker overrides the cycle ticker; tests drive cycles by hand.
	NewTicker func(time.Duration) reconcile.Ticker
}

// Service executes registered cron jobs on a fixed cadence.
type Service struct {
	logg      *logger.Logger
	registry  *Registry
	lock      Lock
	metrics   *metrics.CronJobMetrics
	interval  time.Duration
	newTicker func(time.Duration) reconcile.Ticker
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	newTicker := params.NewTicker
	if newTicker == nil {
		newTicker = reconcile.NewTicker
	}
	return &Service{
		logg:      params.Logger,
		registry:  registry,
		lock:      params.Lock,
		metrics:   params.Metrics,
		interval:  interval,
		newTicker: newTicker,
	}, nil
}

// Run executes one cycle immediately and then one per interval until the
// context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C():
			if err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// RunOnce runs every registered job under the distributed lock. Job
// failures are logged and counted; only lock failures are returned.
func (s *Service) RunOnce(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.IncSkipped()
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	s.logg.Info(ctx, "scheduled run starting")
	for i, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && !s.extendLease(ctx) {
			return nil
		}
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

// extendLease renews the lock between jobs when the lock supports it. A lost
// lease ends the cycle so two replicas never run jobs side by side.
func (s *Service) extendLease(ctx context.Context) bool {
	ext, ok := s.lock.(Extender)
	if !ok {
		return true
	}
	err := ext.Extend(ctx)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrLockLost) {
		s.logg.WarnErr(ctx, "cron lease lost; abandoning cycle", err)
		return false
	}
	s.logg.WarnErr(ctx, "cron lease extension failed", err)
	return true
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}
