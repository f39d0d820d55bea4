package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grundyhq/grundy-backend/api/controllers"
	admincontrollers "github.com/grundyhq/grundy-backend/api/controllers/admin"
	ordercontrollers "github.com/grundyhq/grundy-backend/api/controllers/orders"
	paymentcontrollers "github.com/grundyhq/grundy-backend/api/controllers/payments"
	webhookcontrollers "github.com/grundyhq/grundy-backend/api/controllers/webhooks"
	"github.com/grundyhq/grundy-backend/api/middleware"
	"github.com/grundyhq/grundy-backend/internal/checkout"
	"github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/pkg/auth"
	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	pkgredis "github.com/grundyhq/grundy-backend/pkg/redis"
)

// RouterParams carries every collaborator the HTTP surface needs. Redis is
// optional; without it the idempotency middleware passes requests through.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer

	DB               controllers.Pinger
	Redis            controllers.Pinger
	IdempotencyStore pkgredis.IdempotencyStore

	Checkout      checkout.Service
	Orders        orders.Service
	Webhooks      webhookcontrollers.Ingestor
	Payouts       admincontrollers.FailedPayoutLister
	Refunds       admincontrollers.RefundProcessor
	Discrepancies admincontrollers.DiscrepancyLister
	ParkedEvents  admincontrollers.ParkedEventLister
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL),
	)

	readiness := map[string]controllers.Pinger{"db": p.DB}
	if p.Redis != nil {
		readiness["redis"] = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Post("/api/v1/webhooks/paystack", webhookcontrollers.PaystackWebhook(p.Webhooks, logg))
	r.Get("/api/v1/payments/verify/{reference}", paymentcontrollers.Verify(p.Checkout, logg))

	idempotent := middleware.Idempotency(p.IdempotencyStore, cfg.Eventing.HTTPIdempotencyTTL, logg)

	// Group middlewares run after routing so the idempotency rules see the
	// full route pattern.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(idempotent)
		r.Post("/api/v1/orders", ordercontrollers.Create(p.Checkout, logg))
		r.Get("/api/v1/orders/{reference}", ordercontrollers.Detail(p.Orders, logg))
		r.Post("/api/v1/orders/{reference}/cancel", ordercontrollers.Cancel(p.Orders, logg))
		r.Post("/api/v1/orders/{reference}/retry-channel", ordercontrollers.RetryChannel(p.Checkout, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, auth.RoleOperator))
		r.Use(idempotent)
		r.Get("/api/v1/admin/ping", controllers.OperatorPing())
		r.Patch("/api/v1/orders/{reference}/delivery", ordercontrollers.UpdateDelivery(p.Orders, logg))
		r.Get("/api/v1/admin/payouts/failed", admincontrollers.FailedPayouts(p.Payouts, logg))
		r.Get("/api/v1/admin/discrepancies", admincontrollers.Discrepancies(p.Discrepancies, logg))
		r.Post("/api/v1/admin/refunds/{reference}/process", admincontrollers.ProcessRefund(p.Refunds, logg))
		r.Get("/api/v1/admin/orders/{reference}/parked-events", admincontrollers.ParkedEvents(p.Orders, p.ParkedEvents, logg))
	})

	return r
}
