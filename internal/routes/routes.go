package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tracklane/tracklane/internal/config"
	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/middleware"
	"github.com/tracklane/tracklane/internal/outbox"
	"github.com/tracklane/tracklane/internal/payorder"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Stores are shared with the background workers so the HTTP surface and
	// the dispatcher/sweeper act on the same state.
	Ledger ledger.Store
	Orders payorder.Repository
	Outbox outbox.Store
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Dev mode runs without backing services; fall back to in-memory stores
	// so the API stays exercisable.
	if d.Orders == nil {
		memLedger := ledger.NewMemoryStore()
		memOutbox := outbox.NewMemoryStore()
		d.Ledger = memLedger
		d.Outbox = memOutbox
		d.Orders = payorder.NewMemoryRepository(memLedger, memOutbox)
	}

	orderSvc := payorder.NewService(d.Orders, d.Ledger, d.Cfg, d.Logger)
	orderHandler := payorder.NewHandler(orderSvc, d.Logger)
	walletHandler := ledger.NewHandler(d.Ledger)

	api := app.Group("/api/v1")

	api.Post("/wallets", walletHandler.Create)
	api.Get("/wallets/:walletId", walletHandler.Get)
	api.Get("/wallets/:walletId/balance", walletHandler.Balance)
	api.Get("/wallets/:walletId/transactions", walletHandler.Transactions)
	api.Get("/owners/:ownerId/wallets/:currency", walletHandler.ByOwner)

	orders := api.Group("/payment-orders")
	if d.Cache != nil {
		orders.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	orders.Post("/", orderHandler.Create)
	orders.Get("/:orderId", orderHandler.Get)

	webhook := app.Group("/webhooks")
	webhook.Use(middleware.WebhookRateLimit(d.Cache, d.Cfg.WebhookRatePerMin))
	webhook.Use(middleware.APIKey(orderSvc.VerifyAPIKey, d.Logger))
	webhook.Post("/bank", orderHandler.Webhook)

	return nil
}
