package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PayHook/internal/pkg/env"
)

const (
	RoleAll    = "all"
	RoleWeb    = "web"
	RoleWorker = "worker"
)

// Config is the explicit runtime configuration. It is built once at startup
// and handed to the components that need it.
type Config struct {
	AppHost string
	AppPort string
	AppRole string
	// TrustedProxies may set the client IP through X-Forwarded-For.
	TrustedProxies []string

	Webhook  WebhookConfig
	Queue    QueueConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Metrics  MetricsConfig
}

type WebhookConfig struct {
	Provider        string
	SecretKey       string
	SignatureHeader string
	Tolerance       time.Duration
	DefaultCurrency string
	AllowedIPs      []string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

type QueueConfig struct {
	Workers            int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetrySweepInterval time.Duration
	RetrySweepAge      time.Duration
	CleanupInterval    time.Duration
	RetentionDays      int
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MetricsConfig struct {
	User     string
	Password string
}

// Load reads the configuration from the loaded .env map and the process environment.
func Load() Config {
	return Config{
		AppHost:        env.GetEnv("APP_HOST", "localhost"),
		AppPort:        env.GetEnv("APP_PORT", "4000"),
		AppRole:        strings.ToLower(strings.TrimSpace(env.GetEnv("APP_ROLE", RoleAll))),
		TrustedProxies: splitList(env.GetEnv("TRUSTED_PROXIES", "")),
		Webhook: WebhookConfig{
			Provider:        strings.ToLower(strings.TrimSpace(env.GetEnv("WEBHOOK_PROVIDER", "yaya-wallet"))),
			SecretKey:       env.GetEnv("WEBHOOK_SECRET_KEY", ""),
			SignatureHeader: env.GetEnv("WEBHOOK_SIGNATURE_HEADER", "YAYA-SIGNATURE"),
			Tolerance:       env.GetEnvDuration("WEBHOOK_TOLERANCE_SECONDS", 300*time.Second),
			DefaultCurrency: env.GetEnv("WEBHOOK_DEFAULT_CURRENCY", "ETB"),
			AllowedIPs:      splitList(env.GetEnv("WEBHOOK_ALLOWED_IPS", "")),
			RateLimitMax:    env.GetEnvInt("WEBHOOK_RATE_LIMIT_MAX", 120),
			RateLimitWindow: env.GetEnvDuration("WEBHOOK_RATE_LIMIT_WINDOW", time.Minute),
		},
		Queue: QueueConfig{
			Workers:            env.GetEnvInt("JOBQUEUE_WORKERS", 5),
			MaxRetries:         env.GetEnvInt("JOBQUEUE_MAX_RETRIES", 3),
			RetryBaseDelay:     env.GetEnvDuration("JOBQUEUE_RETRY_BASE_DELAY", 60*time.Second),
			RetrySweepInterval: env.GetEnvDuration("RETRY_SWEEP_INTERVAL", 5*time.Minute),
			RetrySweepAge:      env.GetEnvDuration("RETRY_SWEEP_AGE", 5*time.Minute),
			CleanupInterval:    env.GetEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
			RetentionDays:      env.GetEnvInt("RETENTION_DAYS", 30),
		},
		Database: DatabaseConfig{
			User:     env.GetEnv("DB_USER", "payhook"),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", "payhook_db"),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetEnvInt("CACHE_DB", 0),
		},
		Metrics: MetricsConfig{
			User:     env.GetEnv("METRICS_USER", ""),
			Password: env.GetEnv("METRICS_PASSWORD", ""),
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Webhook.SecretKey) == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET_KEY is required"))
	}
	if c.Webhook.Provider == "" {
		errs = append(errs, errors.New("WEBHOOK_PROVIDER must not be empty"))
	}
	if strings.TrimSpace(c.Webhook.SignatureHeader) == "" {
		errs = append(errs, errors.New("WEBHOOK_SIGNATURE_HEADER must not be empty"))
	}
	if c.Webhook.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TOLERANCE_SECONDS must be positive, got %s", c.Webhook.Tolerance))
	}
	if len(c.Webhook.DefaultCurrency) > 3 {
		errs = append(errs, fmt.Errorf("WEBHOOK_DEFAULT_CURRENCY %q exceeds 3 characters", c.Webhook.DefaultCurrency))
	}
	if c.Queue.MaxRetries < 0 {
		errs = append(errs, errors.New("JOBQUEUE_MAX_RETRIES must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"JOBQUEUE_RETRY_BASE_DELAY": c.Queue.RetryBaseDelay,
		"RETRY_SWEEP_INTERVAL":      c.Queue.RetrySweepInterval,
		"RETRY_SWEEP_AGE":           c.Queue.RetrySweepAge,
		"CLEANUP_INTERVAL":          c.Queue.CleanupInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	// A swept event must not overlap a retry that is still scheduled.
	if longest := time.Duration(c.Queue.MaxRetries) * c.Queue.RetryBaseDelay; c.Queue.RetrySweepAge > 0 && c.Queue.RetrySweepAge <= longest {
		errs = append(errs, fmt.Errorf("RETRY_SWEEP_AGE %s must exceed the longest retry delay %s", c.Queue.RetrySweepAge, longest))
	}
	if c.Queue.RetentionDays <= 0 {
		errs = append(errs, errors.New("RETENTION_DAYS must be positive"))
	}
	switch c.AppRole {
	case RoleAll, RoleWeb, RoleWorker:
	default:
		errs = append(errs, fmt.Errorf("APP_ROLE %q is not one of all, web, worker", c.AppRole))
	}
	return errors.Join(errs...)
}

// RunsWeb reports whether this process serves HTTP.
func (c Config) RunsWeb() bool {
	return c.AppRole == RoleAll || c.AppRole == RoleWeb
}

// RunsWorker reports whether this process consumes jobs and runs the sweeps.
func (c Config) RunsWorker() bool {
	return c.AppRole == RoleAll || c.AppRole == RoleWorker
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
