package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketplace-payouts/api/controllers"
	webhookcontrollers "github.com/angelmondragon/marketplace-payouts/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-payouts/api/middleware"
	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/redis"
)

// Params collects the collaborators the HTTP surface needs.
type Params struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          redis.Pinger
	Idempotency    redis.IdempotencyStore
	Metrics        http.Handler
	Settlement     controllers.PayoutAdminService
	Reconciliation webhookcontrollers.PayoutWebhookService
	WebhookGuard   webhookcontrollers.PayoutWebhookGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payouts", webhookcontrollers.PayoutWebhook(p.Reconciliation, p.WebhookGuard, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin.APIKey, logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Get("/ping", controllers.AdminPing())
		r.Route("/payouts", func(r chi.Router) {
			r.Post("/batches", controllers.AdminCreatePayoutBatch(p.Settlement, logg))
			r.Post("/{payoutId}/retry", controllers.AdminRetryPayout(p.Settlement, logg))
		})
	})

	return r
}
