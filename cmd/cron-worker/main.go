package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/msa-portal/portal-backend/internal/app"
	"github.com/msa-portal/portal-backend/internal/cron"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("jobs", "", "comma separated job names to run (default all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForApp("cron-worker", cfg.App)

	res, err := app.Open(context.Background(), cfg, logg, app.Options{
		RequireRedis: true,
		Registerer:   prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap resources", err)
		os.Exit(1)
	}
	defer res.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "backend", cfg.Backend.Kind)

	views, closeViews, err := openViews(res.SystemContext(ctx), res.Deps())
	if err != nil {
		logg.Error(ctx, "failed to mount views", err)
		os.Exit(1)
	}
	defer closeViews()

	service, err := newService(cfg, logg, res, views, splitNames(*only))
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newService(cfg *config.Config, logg *logger.Logger, res *app.Resources, views map[string]cron.Refresher, only []string) (*cron.Service, error) {
	retention, err := cron.NewLogRetentionJob(cron.LogRetentionJobParams{
		Logger:    logg,
		Backend:   res.Backend,
		Retention: cfg.Refresh.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("log retention job: %w", err)
	}
	warm, err := cron.NewSnapshotWarmJob(cron.SnapshotWarmJobParams{
		Logger: logg,
		Views:  views,
		Actor:  app.SystemActor,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot warm job: %w", err)
	}

	registry, err := cron.NewRegistry(retention, warm).Subset(only...)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(res.Redis, res.Redis.LockKey("cron-worker:"+envName(cfg.App.Env)), 0)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Refresh.CronInterval,
	})
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func splitNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
