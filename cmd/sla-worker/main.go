package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/internal/slamonitor"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
	"github.com/baselhussain/ketoplan-backend/pkg/db"
	"github.com/baselhussain/ketoplan-backend/pkg/errtrack"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/metrics"
	"github.com/baselhussain/ketoplan-backend/pkg/migrate"
	"github.com/baselhussain/ketoplan-backend/pkg/redis"
	"github.com/baselhussain/ketoplan-backend/pkg/square"
)

const trackerFlushTimeout = 2 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "sla-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sla-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sla-worker",
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

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	tracker, err := errtrack.NewSentryTracker(cfg.Sentry.DSN, cfg.App.Env)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap sentry", err)
		os.Exit(1)
	}
	defer tracker.Flush(trackerFlushTimeout)

	lock, err := slamonitor.NewRedisLock(redisClient, redisClient.LockKey("sla-monitor"), cfg.SLA.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create monitor lock", err)
		os.Exit(1)
	}

	monitor, err := slamonitor.NewService(slamonitor.ServiceParams{
		Logger:       logg,
		Resolution:   resolution.NewRepository(dbClient.DB()),
		OrdersRepo:   orders.NewRepository(dbClient.DB()),
		Refunder:     squareClient,
		Lock:         lock,
		Tracker:      tracker,
		Metrics:      metrics.NewMonitorMetrics(prometheus.DefaultRegisterer),
		PollInterval: cfg.SLA.PollInterval,
		Cooldown:     cfg.SLA.Cooldown,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sla monitor", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sla monitor")

	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sla monitor stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sla monitor shutting down gracefully")
}
