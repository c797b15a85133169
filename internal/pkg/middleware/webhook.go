package middleware

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const (
	// LocalWebhookProvider holds the provider slug of the current request.
	LocalWebhookProvider = "webhook_provider"
	// LocalAuthScheme tells handlers how the caller is authenticated.
	LocalAuthScheme = "auth_scheme"

	AuthSchemeSignature = "signature"
)

// WebhookPolicy guards provider webhook routes. Sessions, CSRF tokens and
// API keys do not apply there; the payload signature is the only
// credential. Requests for another provider slug get a 404.
func WebhookPolicy(provider string) fiber.Handler {
	provider = strings.ToLower(strings.TrimSpace(provider))
	return func(c *fiber.Ctx) error {
		if strings.ToLower(c.Params("provider")) != provider {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown provider"})
		}
		c.Locals(LocalWebhookProvider, provider)
		c.Locals(LocalAuthScheme, AuthSchemeSignature)
		return c.Next()
	}
}

// SkipPrefixes returns a Next func for middlewares that must not run on the
// given path prefixes, such as CSRF on machine-to-machine routes.
func SkipPrefixes(prefixes ...string) func(c *fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		path := c.Path()
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

// IPAllowList rejects callers whose address is not listed. Entries are
// single addresses or CIDR ranges. An empty list allows everyone.
func IPAllowList(allowed []string) fiber.Handler {
	if len(allowed) == 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	var ips []net.IP
	var nets []*net.IPNet
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
			continue
		}
		log.Warnf("[Webhook] Ignoring invalid allow-list entry %q", entry)
	}

	return func(c *fiber.Ctx) error {
		clientIP := ClientIP(c)
		ip := net.ParseIP(clientIP)
		if ip != nil {
			for _, allowedIP := range ips {
				if allowedIP.Equal(ip) {
					return c.Next()
				}
			}
			for _, n := range nets {
				if n.Contains(ip) {
					return c.Next()
				}
			}
		}
		log.Warnf("[Webhook] Rejected request from %s: IP not allowed", clientIP)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "IP not allowed"})
	}
}

// ClientIP returns the first X-Forwarded-For hop, or the peer address.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	return c.IP()
}
