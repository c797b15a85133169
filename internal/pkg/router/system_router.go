package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/ManuelReschke/PayHook/internal/pkg/env"
	"github.com/ManuelReschke/PayHook/internal/pkg/middleware"
)

type SystemRouter struct {
	deps Deps
}

func NewSystemRouter(deps Deps) *SystemRouter {
	return &SystemRouter{deps: deps}
}

func (h SystemRouter) InstallRouter(app *fiber.App) {
	// Browser-facing pages (API docs) get CSRF protection. Machine routes
	// authenticate otherwise and are exempt.
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "header:X-CSRF-Token",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next:           middleware.SkipPrefixes("/webhooks", "/healthz", "/metrics"),
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.deps.Metrics != nil {
		handlers := []fiber.Handler{}
		if user, pass := h.deps.Config.Metrics.User, h.deps.Config.Metrics.Password; user != "" && pass != "" {
			handlers = append(handlers, basicauth.New(basicauth.Config{
				Users: map[string]string{user: pass},
			}))
		}
		handlers = append(handlers, adaptor.HTTPHandler(h.deps.Metrics.Handler()))
		app.Get("/metrics", handlers...)
	}
}
