package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PayHook/internal/pkg/middleware"
)

type WebhookRouter struct {
	deps Deps
}

func NewWebhookRouter(deps Deps) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	cfg := h.deps.Config.Webhook

	group := app.Group("/webhooks", limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		Storage:    h.deps.LimiterStorage,
		// Keyed on the peer (or trusted proxy) address, never on a raw header.
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Warnf("[Webhook] Rate limit reached for %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	}))

	// Trailing slash is matched too since routing is not strict.
	group.Post("/:provider",
		middleware.IPAllowList(cfg.AllowedIPs),
		middleware.WebhookPolicy(cfg.Provider),
		h.deps.Webhooks.HandleWebhook,
	)
}
