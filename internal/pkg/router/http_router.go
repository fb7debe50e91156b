package router

import (
	"github.com/scribeforge/scribeforge/app/controllers"
	"github.com/scribeforge/scribeforge/internal/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Webhook endpoint stays outside /api: the processor signs the raw body,
	// so no auth middleware and no body-touching middleware may run before it.
	app.Post("/webhooks/stripe", ratelimit.Middleware("webhook"), controllers.HandleStripeWebhook)

	// Health check for load balancers and uptime monitors
	app.Get("/up", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("OK")
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
