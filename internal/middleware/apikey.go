package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyHeader = "X-API-Key"

// APIKeyAuth guards admin endpoints with a static key whose bcrypt hash is
// configured. With no hash configured the endpoints do not exist.
func APIKeyAuth(hash string) fiber.Handler {
	hashed := []byte(strings.TrimSpace(hash))
	return func(c *fiber.Ctx) error {
		if len(hashed) == 0 {
			return fiber.NewError(http.StatusNotFound, "not found")
		}
		key := c.Get(apiKeyHeader)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing api key")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(key)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}
}
