package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-payouts/internal/bootstrap"
	"github.com/angelmondragon/marketplace-payouts/internal/cron"
	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/instance"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/metrics"
	"github.com/angelmondragon/marketplace-payouts/pkg/migrate"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/angelmondragon/marketplace-payouts/pkg/redis"
)

func main() {
	runOnce := flag.String("run-once", "", "run a single job by name and exit")
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

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logg.Error(context.Background(), "invalid scheduler timezone", err)
		os.Exit(1)
	}

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

	services, err := bootstrap.NewPayouts(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Tx:         dbClient,
		Provider:   provider,
		Notifier:   notifier,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout services", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockEnv(cfg.App.Env), cfg.Scheduler.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	err = cron.RegisterJobs(registry, schedules(cfg.Scheduler), cron.JobsParams{
		Logger:         logg,
		Orders:         services.Orders,
		Eligibility:    services.Eligibility,
		Settlement:     services.Settlement,
		Reconciliation: services.Reconciliation,
		Location:       location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Location: location,
		Timeout:  lock.TTL(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"timezone": location.String(),
	})

	if *runOnce != "" {
		ctx = logg.WithField(ctx, "job", *runOnce)
		logg.Info(ctx, "running single cron job")
		if err := service.RunOnce(ctx, *runOnce); err != nil {
			logg.Error(ctx, "cron job failed", err)
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

func schedules(cfg config.SchedulerConfig) cron.Schedules {
	return cron.Schedules{
		cron.JobOrderAutoApproval: cfg.AutoApprovalSpec,
		cron.JobPayoutEligibility: cfg.EligibilitySpec,
		cron.JobDailyBatchPayout:  cfg.DailyBatchSpec,
		cron.JobPayoutStatusPoll:  cfg.StatusPollSpec,
		cron.JobPayoutRetry:       cfg.RetrySweepSpec,
	}
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
