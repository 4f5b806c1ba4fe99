package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const apikeyScheme = "Apikey"

// APIKey authenticates gateway webhooks via "Authorization: Apikey <secret>".
// The verify function performs the constant-effort comparison; rejection
// happens before any state mutation.
func APIKey(verify func(candidate string) bool, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		scheme, candidate, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, apikeyScheme) {
			return fiber.NewError(http.StatusUnauthorized, "missing api key")
		}

		if !verify(strings.TrimSpace(candidate)) {
			logger.Warn("webhook rejected: invalid api key", "ip", c.IP())
			return fiber.NewError(http.StatusUnauthorized, "invalid api key")
		}

		return c.Next()
	}
}
