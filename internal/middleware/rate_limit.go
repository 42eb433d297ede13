package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/azad-ai/azad_bot/internal/identity"
)

// InboundRateLimit limits inbound messages per sender using Redis if available.
// The sender is normalized so prefix variants share one bucket; unparseable
// senders fall back to the client IP.
func InboundRateLimit(cache *redis.Client, maxPerMin int, region string, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 20
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		sender, err := identity.Normalize(c.FormValue("From"), region)
		if err != nil {
			sender = c.IP()
		}
		key := "rl:inbound:" + sender

		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit lookup failed", slog.Any("error", err))
			return c.Next() // fail open
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			logger.Warn("inbound rate limit exceeded", slog.String("sender", sender), slog.Int64("count", cnt))
			return fiber.NewError(http.StatusTooManyRequests, "too many messages, try again later")
		}
		return c.Next()
	}
}
