package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baselhussain/ketoplan-backend/api/controllers"
	webhookcontrollers "github.com/baselhussain/ketoplan-backend/api/controllers/webhooks"
	"github.com/baselhussain/ketoplan-backend/api/middleware"
	"github.com/baselhussain/ketoplan-backend/internal/admission"
	"github.com/baselhussain/ketoplan-backend/internal/delivery"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
	"github.com/baselhussain/ketoplan-backend/pkg/db"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/redis"
	"github.com/baselhussain/ketoplan-backend/pkg/storage/gcs"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      *redis.Client
	GCS        gcs.Pinger
	Admission  admission.Service
	Verifier   *admission.Verifier
	EventGuard *admission.IdempotencyGuard
	Resolution resolution.Service
	Delivery   delivery.Service
	OrdersRepo orders.Repository
	Refunder   controllers.PaymentRefunder
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	// A typed nil *redis.Client must not reach the probe map as a non-nil
	// interface.
	var redisProbe redis.Pinger
	if params.Redis != nil {
		redisProbe = params.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, redisProbe, params.GCS))
	})

	webhookPolicy := middleware.NewWebhookRateLimitPolicy(
		cfg.Webhook.RateLimitWindow,
		cfg.Webhook.RateLimitMax,
	)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if params.Redis != nil {
			r.Use(middleware.WebhookRateLimit(webhookPolicy, params.Redis, logg))
		}
		r.Post("/payment", webhookcontrollers.PaymentWebhook(params.Admission, params.Verifier, params.EventGuard, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminJWT, logg))

		r.Route("/resolution", func(r chi.Router) {
			r.Get("/", controllers.ResolutionList(params.Resolution, logg))
			r.Post("/{entryId}/claim", controllers.ResolutionClaim(params.Resolution, logg))
			r.Post("/{entryId}/resolve", controllers.ResolutionResolve(params.Resolution, logg))
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/{paymentId}", controllers.PlanDetail(params.OrdersRepo, logg))
			r.Post("/{paymentId}/regenerate", controllers.PlanRegenerate(params.Delivery, params.OrdersRepo, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/{paymentId}/refund", controllers.OrderRefund(params.Refunder, params.OrdersRepo, logg))
		})
	})

	return r
}
