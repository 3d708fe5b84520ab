package middleware

import (
	"fmt"
	"time"

	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimit enforces a fixed-window per-caller request limit, counted in
// Redis so all API instances share one budget. Authenticated callers are
// keyed by user id, anonymous ones by client IP.
//
// Redis being down must not take the API down with it: counter failures
// fail open.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "calsync:ratelimit:" + callerKey(c)

		count, err := rdb.Incr(c.Context(), key).Result()
		if err != nil {
			logger.WithError(err).Warn("rate limit counter unavailable, allowing request")
			return c.Next()
		}
		if count == 1 {
			rdb.Expire(c.Context(), key, window)
		}

		if count > int64(limit) {
			c.Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			return apperr.New(apperr.CodeRateLimited, "rate limit exceeded", fiber.StatusTooManyRequests)
		}
		return c.Next()
	}
}

func callerKey(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(uuid.UUID); ok {
		return "user:" + userID.String()
	}
	return "ip:" + c.IP()
}
