package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RouteLogger writes one line per finished request. Health probes and the
// long-lived change stream log at debug; 5xx at error.
func RouteLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		logger := zerolog.Ctx(c.UserContext())
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = logger.Error()
		case strings.HasPrefix(c.Path(), "/health") || strings.HasSuffix(c.Path(), "/changes"):
			ev = logger.Debug()
		default:
			ev = logger.Info()
		}
		if actor, aErr := GetActor(c); aErr == nil {
			ev = ev.Str("actor", actor.ID)
		}
		ev.Str("method", c.Method()).Str("path", c.Path()).Int("status", status).
			Dur("elapsed", time.Since(start)).Msg("request")
		return err
	}
}
