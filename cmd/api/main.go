package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tracklane/tracklane/internal/billing"
	"github.com/tracklane/tracklane/internal/config"
	"github.com/tracklane/tracklane/internal/infra"
	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/logging"
	"github.com/tracklane/tracklane/internal/messaging"
	"github.com/tracklane/tracklane/internal/outbox"
	"github.com/tracklane/tracklane/internal/payorder"
	"github.com/tracklane/tracklane/internal/routes"
	"github.com/tracklane/tracklane/internal/server"
	"github.com/tracklane/tracklane/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if cfg.IsDev() {
		logger = logging.NewText(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.PaymentsExchange)
	if err != nil {
		logger.Error("connect rabbitmq publisher", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close rabbitmq publisher", "error", err)
		}
	}()

	consumer, err := messaging.NewRabbitConsumer(cfg.RabbitURL, cfg.BookingExchange, cfg.BookingQueue, logger)
	if err != nil {
		logger.Error("connect rabbitmq consumer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("close rabbitmq consumer", "error", err)
		}
	}()

	ledgerStore := ledger.NewPostgresStore(db)
	outboxStore := outbox.NewPostgresStore(db)
	orderRepo := payorder.NewPostgresRepository(db, ledgerStore, outboxStore)
	inbox := messaging.NewPostgresInbox(db)

	dispatcher := outbox.NewDispatcher(outboxStore, publisher, cfg.OutboxInterval, cfg.OutboxBatch, logger)
	dispatcher.Start(ctx)

	orderSvc := payorder.NewService(orderRepo, ledgerStore, cfg, logger)
	sweeper := payorder.NewSweeper(orderSvc, cfg.SweepInterval, logger)
	sweeper.Start(ctx)

	chargeStore := billing.NewPostgresChargeStore(db, ledgerStore, outboxStore, inbox)
	processor := billing.NewProcessor(chargeStore, logger)
	go func() {
		if err := consumer.Start(ctx, processor.HandleDelivery); err != nil {
			logger.Error("booking consumer stopped", "error", err)
		}
	}()

	srv, err := server.New(cfg, routes.Deps{
		DB:     db,
		Cache:  cache,
		Ledger: ledgerStore,
		Orders: orderRepo,
		Outbox: outboxStore,
	}, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
