package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/msa-portal/portal-backend/api/controllers"
	"github.com/msa-portal/portal-backend/api/routes"
	"github.com/msa-portal/portal-backend/internal/app"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForApp("api", cfg.App)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	res, err := app.Open(context.Background(), cfg, logg, app.Options{Registerer: registry})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap resources", err)
		os.Exit(1)
	}
	defer res.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":    addr,
		"backend": cfg.Backend.Kind,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Views:       &controllers.Views{Deps: res.Deps(), Logger: logg},
			Redis:       res.Redis,
			Pingers:     res.Pingers(),
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			res.Close()
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
