package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/msa-portal/portal-backend/api/controllers"
	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/postgrest"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/procedures"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/db"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
	"github.com/msa-portal/portal-backend/pkg/migrate"
	"github.com/msa-portal/portal-backend/pkg/pubsub"
	"github.com/msa-portal/portal-backend/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Options tune which optional resources a process opens.
type Options struct {
	// RequireRedis fails Open when redis is not configured.
	RequireRedis bool
	// Registerer receives the resource metrics; nil skips them.
	Registerer prometheus.Registerer
}

// Resources are the process-wide clients shared by every resource view.
type Resources struct {
	Config  *config.Config
	Backend backend.Backend
	DB      *db.Client
	Redis   *redis.Client
	PubSub  *pubsub.Client
	Sink    notifications.Sink
	Metrics *metrics.ResourceMetrics

	logg    *logger.Logger
	closers []func() error
}

// Open connects the configured backend and its optional companions. The
// returned Resources must be closed by the caller.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts Options) (*Resources, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	res := &Resources{Config: cfg, logg: logg}

	if err := res.openBackend(ctx); err != nil {
		res.Close()
		return nil, err
	}

	switch {
	case cfg.Redis.Enabled():
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		res.Redis = client
		res.closers = append(res.closers, client.Close)
	case opts.RequireRedis:
		res.Close()
		return nil, fmt.Errorf("%s is required", config.EnvRedisURL)
	default:
		logg.Warn(ctx, "redis not configured; idempotency, rate limits and snapshots disabled")
	}

	var publisher pubsub.Publisher
	if cfg.Notify.Has(config.NotifySinkPubSub) {
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.Notify, logg)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		res.PubSub = client
		publisher = client.NotificationPublisher()
		res.closers = append(res.closers, func() error {
			publisher.Stop()
			return client.Close()
		})
	}
	res.Sink = notifications.FromConfig(cfg.Notify, publisher, logg)

	if opts.Registerer != nil {
		res.Metrics = metrics.NewResourceMetrics(opts.Registerer)
	}
	return res, nil
}

func (r *Resources) openBackend(ctx context.Context) error {
	cfg := r.Config
	if cfg.Backend.UsesPostgREST() {
		client, err := postgrest.New(postgrest.Params{Config: cfg.Backend, Logger: r.logg})
		if err != nil {
			return fmt.Errorf("bootstrap backend: %w", err)
		}
		r.Backend = client
		return nil
	}

	dbClient, err := db.New(ctx, cfg.DB, r.logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	r.DB = dbClient
	r.closers = append(r.closers, dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, r.logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	store, err := sqlstore.NewFromClient(dbClient, r.logg)
	if err != nil {
		return fmt.Errorf("bootstrap sql backend: %w", err)
	}
	procedures.Register(store, nil)
	r.Backend = store
	return nil
}

// Deps assembles the reconcile dependencies shared by every view.
func (r *Resources) Deps() reconcile.Deps {
	deps := reconcile.Deps{
		Backend:    r.Backend,
		Sink:       r.Sink,
		Logger:     r.logg,
		Metrics:    r.Metrics,
		Optimistic: r.Config.FeatureFlags.OptimisticMutations,
	}
	if r.Redis != nil {
		deps.Snapshots = r.Redis
		deps.KeyFor = r.Redis.SnapshotKey
	}
	return deps
}

// Pingers lists the health checks of the opened clients.
func (r *Resources) Pingers() map[string]controllers.Pinger {
	pingers := map[string]controllers.Pinger{}
	if r.DB != nil {
		pingers["database"] = r.DB
	}
	if r.Redis != nil {
		pingers["redis"] = r.Redis
	}
	if r.PubSub != nil {
		pingers["pubsub"] = r.PubSub
	}
	return pingers
}

// Close releases clients in reverse open order.
func (r *Resources) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, r.closers[i]())
	}
	r.closers = nil
	if errs != nil {
		r.logg.Error(context.Background(), "error closing resources", errs)
	}
	return errs
}
