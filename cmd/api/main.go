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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-payouts/api/routes"
	"github.com/angelmondragon/marketplace-payouts/internal/bootstrap"
	"github.com/angelmondragon/marketplace-payouts/internal/reconciliation"
	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/instance"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/migrate"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/angelmondragon/marketplace-payouts/pkg/redis"
)

const (
	webhookDedupeScope = "payout_webhook"
	shutdownTimeout    = 20 * time.Second
)

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	notifier, closeNotifier, err := bootstrap.NewNotifier(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap notifier", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logg.Error(context.Background(), "error closing notifier", err)
		}
	}()

	provider, err := payoutgateway.NewHTTPClient(cfg.Provider)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout provider client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := bootstrap.NewPayouts(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Tx:         dbClient,
		Provider:   provider,
		Notifier:   notifier,
		Registerer: registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout services", err)
		os.Exit(1)
	}

	guard, err := reconciliation.NewWebhookGuard(redisClient, cfg.Provider.WebhookDedupeTTL, webhookDedupeScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	if cfg.Admin.APIKey == "" {
		logg.Warn(ctx, "admin api key not set, admin routes are disabled")
	}
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(routes.Params{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Idempotency:    redisClient,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Settlement:     services.Settlement,
		Reconciliation: services.Reconciliation,
		WebhookGuard:   guard,
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
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
