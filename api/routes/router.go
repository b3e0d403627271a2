package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipts-backend/api/controllers"
	"github.com/angelmondragon/receipts-backend/api/middleware"
	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/pipeline"
	receiptsvc "github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/internal/sender"
	"github.com/angelmondragon/receipts-backend/internal/webhooks"
	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Webhooks     *webhooks.Service
	Receipts     receiptsvc.Service
	Orders       orders.Repository
	Pipeline     *pipeline.Pipeline
	Sender       *sender.Sender
	HealthChecks map[string]controllers.Pinger
}

// NewRouter assembles the chi router for the API process.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.HealthChecks))
	})

	r.Route("/api/webhook", func(r chi.Router) {
		r.Post("/payment-webhook", controllers.PaymentWebhook(deps.Webhooks, logg))
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(middleware.AdminOnly(cfg.Admin, logg))
		r.Get("/", controllers.ListOrders(deps.Orders, logg))
		r.Get("/{orderId}", controllers.GetOrder(deps.Orders, deps.Receipts, logg))
		r.Get("/{orderId}/receipts", controllers.ListOrderReceipts(deps.Orders, deps.Receipts, logg))
	})

	r.Route("/api/receipts", func(r chi.Router) {
		// download authenticates per request (admin key or signed token), so
		// it stays outside the admin gate
		r.With(middleware.AdminProbe(cfg.Admin)).
			Get("/{receiptId}/download", controllers.DownloadReceipt(deps.Receipts, cfg.Admin, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(cfg.Admin, logg))
			r.Get("/", controllers.ListReceipts(deps.Receipts, logg))
			r.Get("/{receiptId}", controllers.GetReceipt(deps.Receipts, deps.Orders, logg))
			r.Get("/{receiptId}/download-url", controllers.ReceiptDownloadURL(deps.Receipts, logg))
			r.Post("/{receiptId}/retry-email", controllers.RetryReceiptEmail(deps.Pipeline, deps.Receipts, logg))
		})
	})

	r.Route("/api/webhook-sender", func(r chi.Router) {
		r.Use(middleware.AdminOnly(cfg.Admin, logg))
		r.Post("/mock", controllers.SendMockWebhook(deps.Sender, logg))
		r.Post("/resend/{eventId}", controllers.ResendWebhook(deps.Sender, logg))
	})

	return r
}
