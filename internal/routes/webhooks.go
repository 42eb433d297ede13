package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/azad-ai/azad_bot/internal/ledger"
	"github.com/azad-ai/azad_bot/internal/middleware"
	"github.com/azad-ai/azad_bot/internal/router"
)

const (
	messageWebhookPath = "/webhooks/message"
	paymentWebhookPath = "/webhooks/payment"
)

// RegisterWebhookRoutes wires the provider and payment processor callbacks.
func RegisterWebhookRoutes(app *fiber.App, d Deps, messages *router.Handler, payments *ledger.Handler) {
	app.Post(messageWebhookPath,
		middleware.InboundRateLimit(d.Cache, d.Cfg.InboundRateLimit, d.Cfg.DefaultRegion, d.Logger),
		messages.InboundMessage,
	)

	paymentChain := []fiber.Handler{}
	if d.Cache != nil {
		paymentChain = append(paymentChain, middleware.WebhookReplayGuard(
			d.Cache, d.Cfg.Payment.SignatureHeader, ledger.SignatureField, d.Cfg.WebhookReplayTTL, d.Logger,
		))
	}
	paymentChain = append(paymentChain, payments.PaymentWebhook)
	app.Post(paymentWebhookPath, paymentChain...)
}

// RegisterAdminRoutes wires manual ledger maintenance behind the admin API key.
func RegisterAdminRoutes(app *fiber.App, d Deps, h *ledger.Handler) {
	admin := app.Group("/admin", middleware.APIKeyAuth(d.Cfg.AdminAPIKeyHash))
	admin.Get("/users/:identity", h.GetUser)
	admin.Put("/users/:identity", h.PutUser)
	admin.Delete("/users/:identity", h.DeleteUser)
}
