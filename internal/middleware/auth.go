package middleware

import (
	"strings"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const userLocal = "user"

// BearerIdentity accepts an HS256 identity token as an alternative to the
// session cookie. A valid token replaces the session user; an invalid one is 401.
// With an empty secret the header is ignored.
func BearerIdentity(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			return c.Next()
		}
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Next()
		}
		actor, err := auth.ParseToken(key, strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			log.Warn().Err(err).Str("trace_id", GetTraceID(c)).Msg("Rejected identity token")
			return response.Unauthorized(c, err.Error())
		}
		c.Locals(userLocal, auth.SessionMap(*actor))
		return c.Next()
	}
}

// RequireAuth ensures a valid actor is attached. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.VerifyUser(c.Locals(userLocal))
		if err != nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", actor)
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// GetActor returns the verified actor for the request.
func GetActor(c *fiber.Ctx) (*auth.Actor, error) {
	if a, ok := c.Locals("auth").(*auth.Actor); ok && a != nil {
		return a, nil
	}
	return auth.VerifyUser(GetUser(c))
}
