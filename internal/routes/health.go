package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/azad-ai/azad_bot/internal/ledger"
)

// RegisterHealthRoutes adds a readiness endpoint covering the ledger store and
// whichever of Postgres and Redis are configured.
func RegisterHealthRoutes(app *fiber.App, d Deps, store ledger.Store) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{}
		healthy := true
		record := func(name string, err error) {
			if err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}

		record("store", store.Ping(ctx))
		if d.DB != nil {
			record("postgres", d.DB.Ping(ctx))
		}
		if d.Cache != nil {
			record("redis", d.Cache.Ping(ctx).Err())
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"driver":    d.Cfg.StoreDriver,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
