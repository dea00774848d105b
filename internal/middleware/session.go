package middleware

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// SessionConfig for the Redis-backed session written by the auth collaborator.
type SessionConfig struct {
	RedisURL   string
	CookieName string
}

const (
	defaultSessionCookie = "stockdesk.sid"
	SessionRedisPrefix   = "session:"
)

// Session returns a Fiber middleware that loads the session user from Redis,
// plus the client it opened (shared with the change feed, guard and health).
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)
	return SessionFromClient(rdb, cfg.CookieName), rdb, nil
}

// SessionFromClient reads sessions through an existing client. Sessions are
// read-only here: login and logout belong to the auth collaborator.
func SessionFromClient(rdb *redis.Client, cookieName string) fiber.Handler {
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(cookieName)
		// cookie may be "s:id" or "s:id.signature"; use first part as id
		if strings.HasPrefix(sessionID, "s:") {
			parts := strings.SplitN(sessionID[2:], ".", 2)
			sessionID = parts[0]
		}

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(context.Background(), SessionRedisPrefix+sessionID).Bytes()
			if err == nil {
				_ = json.Unmarshal(b, &data)
			}
		}
		if u, ok := data["user"]; ok {
			c.Locals(userLocal, u)
		} else {
			c.Locals(userLocal, nil)
		}
		c.Locals("session_id", sessionID)
		return c.Next()
	}
}

// GetSessionID returns the current session ID from context.
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}
