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

	"github.com/msa-portal/portal-backend/internal/app"
	"github.com/msa-portal/portal-backend/internal/monitoring"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/env"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/pagination"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "monitor"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForApp("monitor", cfg.App)

	registry := prometheus.NewRegistry()
	res, err := app.Open(context.Background(), cfg, logg, app.Options{Registerer: registry})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap resources", err)
		os.Exit(1)
	}
	defer res.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + env.Get("PORTAL_MONITOR_PORT", "9090")
	ctx := logg.WithField(res.SystemContext(sigCtx), "addr", addr)

	svc, err := monitoring.NewService(ctx, monitoring.ServiceParams{
		Deps:     res.Deps(),
		Query:    reconcile.Query{Page: pagination.Params{Limit: cfg.Refresh.Limit}},
		Interval: cfg.Refresh.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to mount monitoring view", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.StartAutoRefresh(ctx); err != nil {
		logg.Error(ctx, "failed to start auto refresh", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           newHandler(svc, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logg.Info(ctx, "monitor started")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "monitor server stopped unexpectedly", err)
		}
	case <-sigCtx.Done():
	}

	svc.StopAutoRefresh()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "monitor shutdown failed", err)
	}
	logg.Info(ctx, "monitor shutting down gracefully")
}
