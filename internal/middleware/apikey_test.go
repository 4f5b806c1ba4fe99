package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/tracklane/tracklane/internal/logging"
)

func setupAPIKeyApp() *fiber.App {
	app := fiber.New()
	verify := func(candidate string) bool { return candidate == "secret" }
	app.Use(APIKey(verify, logging.Discard()))
	app.Post("/hook", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAPIKeyAcceptsValidCredential(t *testing.T) {
	app := setupAPIKeyApp()

	for _, header := range []string{"Apikey secret", "apikey secret", "APIKEY secret"} {
		req := httptest.NewRequest(fiber.MethodPost, "/hook", nil)
		req.Header.Set(fiber.HeaderAuthorization, header)

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("header %q: expected %d got %d", header, fiber.StatusOK, resp.StatusCode)
		}
	}
}

func TestAPIKeyRejectsBadCredentials(t *testing.T) {
	app := setupAPIKeyApp()

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Bearer secret",
		"no credential":  "Apikey",
		"wrong secret":   "Apikey nope",
	}

	for name, header := range cases {
		req := httptest.NewRequest(fiber.MethodPost, "/hook", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: app.Test: %v", name, err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected %d got %d", name, fiber.StatusUnauthorized, resp.StatusCode)
		}
	}
}
