package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/baselhussain/ketoplan-backend/api/routes"
	"github.com/baselhussain/ketoplan-backend/internal/admission"
	"github.com/baselhussain/ketoplan-backend/internal/delivery"
	"github.com/baselhussain/ketoplan-backend/internal/intake"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/refunds"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
	"github.com/baselhussain/ketoplan-backend/pkg/db"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/mailer"
	"github.com/baselhussain/ketoplan-backend/pkg/metrics"
	"github.com/baselhussain/ketoplan-backend/pkg/migrate"
	"github.com/baselhussain/ketoplan-backend/pkg/openai"
	"github.com/baselhussain/ketoplan-backend/pkg/redis"
	"github.com/baselhussain/ketoplan-backend/pkg/square"
	"github.com/baselhussain/ketoplan-backend/pkg/storage/gcs"
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

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(cfg.OpenAI, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap openai", err)
		os.Exit(1)
	}

	mailClient, err := mailer.NewClient(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap sendgrid", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	intakeRepo := intake.NewRepository(dbClient.DB())

	resolutionSvc, err := resolution.NewService(resolution.ServiceParams{
		Logger:    logg,
		Repo:      resolution.NewRepository(dbClient.DB()),
		TxRunner:  dbClient,
		SLABudget: cfg.SLA.Budget,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create resolution service", err)
		os.Exit(1)
	}

	deliverySvc, err := delivery.NewService(delivery.ServiceParams{
		Logger:               logg,
		OrdersRepo:           ordersRepo,
		IntakeRepo:           intakeRepo,
		TxRunner:             dbClient,
		Generator:            delivery.NewGenerator(openaiClient),
		Uploader:             gcsClient,
		Sender:               mailClient,
		Resolution:           resolutionSvc,
		Metrics:              metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer),
		GenerationAttempts:   cfg.Delivery.GenerationAttempts,
		NotificationAttempts: cfg.Delivery.NotificationAttempts,
		NotificationBackoff:  cfg.Delivery.NotificationBackoff,
		DefaultCalorieTarget: cfg.Delivery.DefaultCalorieTarget,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	refundsSvc, err := refunds.NewService(refunds.ServiceParams{
		Logger:         logg,
		Repo:           refunds.NewRepository(dbClient.DB()),
		OrdersRepo:     ordersRepo,
		Resolution:     resolutionSvc,
		TxRunner:       dbClient,
		FlagThreshold:  cfg.Abuse.FlagThreshold,
		BlockThreshold: cfg.Abuse.BlockThreshold,
		BlacklistTTL:   cfg.Abuse.BlacklistTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	admissionSvc, err := admission.NewService(admission.ServiceParams{
		Logger:     logg,
		OrdersRepo: ordersRepo,
		TxRunner:   dbClient,
		Delivery:   deliverySvc,
		Refunds:    refundsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admission service", err)
		os.Exit(1)
	}

	verifier, err := admission.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook verifier", err)
		os.Exit(1)
	}

	eventGuard, err := admission.NewIdempotencyGuard(redisClient, cfg.Webhook.EventGuardTTL, "webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create event guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			GCS:        gcsClient,
			Admission:  admissionSvc,
			Verifier:   verifier,
			EventGuard: eventGuard,
			Resolution: resolutionSvc,
			Delivery:   deliverySvc,
			OrdersRepo: ordersRepo,
			Refunder:   squareClient,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
