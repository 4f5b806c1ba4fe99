package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func setupRequestIDApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFrom(c))
	})
	return app
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	app := setupRequestIDApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	echoed := resp.Header.Get("X-Request-ID")
	if echoed == "" {
		t.Fatal("response is missing X-Request-ID")
	}
	if _, err := uuid.Parse(echoed); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", echoed, err)
	}
}

func TestRequestIDKeepsInboundID(t *testing.T) {
	app := setupRequestIDApp()

	req := httptest.NewRequest(fiber.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "gateway-retry-7")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	if got := resp.Header.Get("X-Request-ID"); got != "gateway-retry-7" {
		t.Fatalf("response id = %q, want inbound id kept", got)
	}
}

func TestRequestIDFromWithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/bare", func(c *fiber.Ctx) error {
		if got := RequestIDFrom(c); got != "" {
			t.Errorf("expected empty id, got %q", got)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	if _, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/bare", nil)); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
}
