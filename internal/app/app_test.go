package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/postgrest"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/internal/members"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(name string) *config.Config {
	return &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		DB:           config.DBConfig{Driver: config.DBDriverSQLite, DSN: "file:" + name + "?mode=memory&cache=shared"},
		Backend:      config.BackendConfig{Kind: config.BackendKindSQL},
		Notify:       config.NotifyConfig{Sinks: []string{config.NotifySinkLog}},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
}

func TestOpenSQLBackendServesViews(t *testing.T) {
	ctx := context.Background()
	res, err := Open(ctx, sqliteConfig("app_open_sql"), logger.Nop(), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer res.Close()

	require.IsType(t, &sqlstore.Store{}, res.Backend)
	require.NotNil(t, res.Metrics)
	require.Contains(t, res.Pingers(), "database")
	require.NotContains(t, res.Pingers(), "redis")

	deps := res.Deps()
	require.Nil(t, deps.Snapshots)
	require.Nil(t, deps.KeyFor)

	svc, err := members.NewService(ctx, members.ServiceParams{Deps: deps})
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.Refresh(res.SystemContext(ctx)))
	snap := svc.Snapshot()
	require.False(t, snap.UsingFallbackData)
	require.Empty(t, snap.Collection)
}

func TestOpenRequiresRedisWhenAsked(t *testing.T) {
	_, err := Open(context.Background(), sqliteConfig("app_require_redis"), logger.Nop(), Options{RequireRedis: true})
	require.ErrorContains(t, err, config.EnvRedisURL)
}

func TestOpenPostgRESTBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := &config.Config{
		Backend: config.BackendConfig{Kind: config.BackendKindPostgREST, URL: srv.URL, AnonKey: "anon"},
	}
	res, err := Open(context.Background(), cfg, logger.Nop(), Options{})
	require.NoError(t, err)
	defer res.Close()

	require.IsType(t, &postgrest.Client{}, res.Backend)
	require.Nil(t, res.DB)
	require.Empty(t, res.Pingers())
	require.Nil(t, res.Metrics)
}

func TestSystemContextCarriesActorAndToken(t *testing.T) {
	res := &Resources{Config: &config.Config{Backend: config.BackendConfig{ServiceToken: " svc-token "}}}
	ctx := res.SystemContext(context.Background())

	require.Same(t, SystemActor, backend.UserFromContext(ctx))
	require.Equal(t, "svc-token", backend.AccessTokenFromContext(ctx))

	res.Config.Backend.ServiceToken = ""
	require.Empty(t, backend.AccessTokenFromContext(res.SystemContext(context.Background())))
}
