package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PayHook/app/controllers"
	"github.com/ManuelReschke/PayHook/app/repository"
	"github.com/ManuelReschke/PayHook/internal/pkg/cache"
	"github.com/ManuelReschke/PayHook/internal/pkg/config"
	"github.com/ManuelReschke/PayHook/internal/pkg/database"
	"github.com/ManuelReschke/PayHook/internal/pkg/env"
	"github.com/ManuelReschke/PayHook/internal/pkg/eventprocessor"
	"github.com/ManuelReschke/PayHook/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayHook/internal/pkg/metrics"
	"github.com/ManuelReschke/PayHook/internal/pkg/router"
	"github.com/ManuelReschke/PayHook/internal/pkg/webhook"
)

func main() {
	env.SetupEnvFile()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[PayHook] Invalid configuration: %v", err)
	}

	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("[PayHook] %v", err)
	}
	if env.IsDev() {
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("[PayHook] %v", err)
		}
	}

	redisClient := cache.SetupCache(cfg.Cache)
	m := metrics.New()

	repos := repository.NewRepositories(db, repository.WithDefaultCurrency(cfg.Webhook.DefaultCurrency))

	registry := jobqueue.NewRegistry()
	eventprocessor.NewProcessor(repos.WebhookEvent, nil,
		eventprocessor.WithMaxAttempts(cfg.Queue.MaxRetries+1),
	).Register(registry)

	queue := jobqueue.NewQueue(redisClient, registry, jobqueue.Options{
		Workers:        cfg.Queue.Workers,
		MaxRetries:     cfg.Queue.MaxRetries,
		RetryBaseDelay: cfg.Queue.RetryBaseDelay,
		Metrics:        m,
	})

	var manager *jobqueue.Manager
	if cfg.RunsWorker() {
		manager = jobqueue.NewManager(queue)
		eventprocessor.NewHousekeeper(repos.WebhookEvent, queue, cfg.Queue.RetrySweepAge, m).
			Schedule(manager, cfg.Queue.RetrySweepInterval, cfg.Queue.CleanupInterval, cfg.Queue.RetentionDays)
		manager.Start()
	}

	var app *fiber.App
	if cfg.RunsWeb() {
		app = NewApplication(cfg, repos, queue, m)
		go func() {
			if err := app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort)); err != nil {
				log.Errorf("[PayHook] HTTP server stopped: %v", err)
			}
		}()
	}

	log.Infof("[PayHook] Running with role %q", cfg.AppRole)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[PayHook] Shutting down")
	if app != nil {
		if err := app.Shutdown(); err != nil {
			log.Errorf("[PayHook] HTTP shutdown: %v", err)
		}
	}
	if manager != nil {
		manager.Stop()
	}
	if err := cache.Close(); err != nil {
		log.Errorf("[PayHook] Closing Redis: %v", err)
	}
}

// NewApplication builds the HTTP app serving the webhook endpoint, health and metrics.
func NewApplication(cfg config.Config, repos *repository.Repositories, scheduler jobqueue.Scheduler, m *metrics.Metrics) *fiber.App {
	app := fiber.New(router.AppConfig(cfg, fiber.Config{
		ErrorHandler: controllers.ErrorHandler,
		BodyLimit:    64 * 1024,
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Warn("[PayHook] OpenAPI document not found, /docs/api/v1 disabled")
	}

	verifier := webhook.NewSignatureService(webhook.SignatureConfig{
		Secret:    cfg.Webhook.SecretKey,
		Tolerance: cfg.Webhook.Tolerance,
	})

	router.InstallRouter(app, router.Deps{
		Config:         cfg,
		Webhooks:       controllers.NewWebhookController(cfg.Webhook, verifier, repos.WebhookEvent, scheduler, m),
		Metrics:        m,
		LimiterStorage: newLimiterStorage(cfg.Cache),
	})

	return app
}

func newLimiterStorage(cfg config.CacheConfig) fiber.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Warnf("[PayHook] Invalid CACHE_PORT %q, rate limiter falls back to memory", cfg.Port)
		return nil
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: cfg.DB,
		Reset:    false,
	})
}

// findOpenAPISpec looks for the document relative to the usual working directories.
func findOpenAPISpec() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/payhook to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		candidate := path + "docs/v1/openapi.yml"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
