package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	replayPrefix     = "webhook:replay:v1:"
	inProgressMarker = "__in_progress__"
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// WebhookReplayGuard remembers the response to each signed webhook delivery in
// Redis, keyed by its signature. Redelivered payloads get the stored response
// without reaching the handler. Deliveries without a signature pass through.
// Only responses below 500 are kept so failed deliveries can be retried.
func WebhookReplayGuard(cache *redis.Client, signatureHeader, signatureField string, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}
		signature := c.Get(signatureHeader)
		if signature == "" {
			signature = c.FormValue(signatureField)
		}
		if signature == "" {
			return c.Next()
		}

		sum := sha256.Sum256([]byte(c.Path() + "\x00" + signature))
		key := hex.EncodeToString(sum[:])
		cacheKey := replayPrefix + key

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			if cached == inProgressMarker {
				return fiber.NewError(fiber.StatusConflict, "delivery currently processing")
			}
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("failed to decode stored webhook response", slog.String("key", key), slog.Any("error", err))
				return fiber.NewError(fiber.StatusConflict, "duplicate delivery")
			}
			for header, value := range stored.Headers {
				if header == fiber.HeaderContentLength {
					continue
				}
				c.Set(header, value)
			}
			logger.Info("webhook replay served from cache", slog.String("key", key))
			return c.Status(stored.Status).SendString(stored.Body)
		}
		if !errors.Is(err, redis.Nil) {
			// The ledger is idempotent on its own, so a cache outage only costs the shortcut.
			logger.Error("replay lookup failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("replay reservation failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "delivery currently processing")
		}

		release := func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
		}

		if err := c.Next(); err != nil {
			release()
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			release()
			return nil
		}

		stored := storedResponse{
			Status:  status,
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode webhook response", slog.String("key", key), slog.Any("error", err))
			release()
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("failed to persist webhook response", slog.String("key", key), slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}
