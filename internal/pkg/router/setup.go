package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayHook/app/controllers"
	"github.com/ManuelReschke/PayHook/internal/pkg/config"
	"github.com/ManuelReschke/PayHook/internal/pkg/metrics"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the wired components the routes need.
type Deps struct {
	Config   config.Config
	Webhooks *controllers.WebhookController
	Metrics  *metrics.Metrics
	// LimiterStorage backs the webhook rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Deps) {
	// System routes first so the CSRF middleware is in place before any
	// browser-facing route is added.
	setup(app, NewSystemRouter(deps), NewWebhookRouter(deps))
}

// AppConfig returns base with proxy handling from cfg. Without trusted
// proxies c.IP() is the peer address and forwarded headers are ignored.
func AppConfig(cfg config.Config, base fiber.Config) fiber.Config {
	if len(cfg.TrustedProxies) == 0 {
		return base
	}
	base.EnableTrustedProxyCheck = true
	base.TrustedProxies = cfg.TrustedProxies
	base.ProxyHeader = fiber.HeaderXForwardedFor
	return base
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
