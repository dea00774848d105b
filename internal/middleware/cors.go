package middleware

import (
	"strings"

	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig decides which browser origins may call the API.
type CORSConfig struct {
	AllowedSuffix string // e.g. ".stockdesk.app"
	DevPassword   string // header "dev-password" unlocks any origin
	AllowLocal    bool   // localhost / 127.0.0.1 origins
}

func (cfg CORSConfig) allows(c *fiber.Ctx, origin string) bool {
	o := strings.ToLower(origin)
	switch {
	case cfg.AllowLocal && (strings.HasPrefix(o, "http://localhost:") || strings.HasPrefix(o, "http://127.0.0.1:")):
		return true
	case cfg.AllowedSuffix != "" && strings.HasSuffix(o, strings.ToLower(cfg.AllowedSuffix)):
		return true
	case cfg.DevPassword != "" && c.Get("dev-password") == cfg.DevPassword:
		return true
	}
	return false
}

// CORS answers preflights for allowed origins and rejects the rest with 403.
// Requests without an Origin header (same-origin, curl, workers) pass.
func CORS(cfg CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}
		if !cfg.allows(c, origin) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
		c.Set(fiber.HeaderAccessControlExposeHeaders, traceIDHeader)
		c.Vary(fiber.HeaderOrigin)
		if c.Method() == fiber.MethodOptions {
			c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, Last-Event-ID, X-Trace-Id, dev-password")
			c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS")
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
