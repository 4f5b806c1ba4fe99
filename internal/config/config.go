package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "TracklanePayments"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultOrderTTL       = 15 * time.Minute
	defaultSweepInterval  = time.Minute
	defaultOutboxInterval = 2 * time.Second
	defaultOutboxBatch    = 32
	defaultExchange       = "tracklane.payments"
	defaultBookingQueue   = "payments.bookings"
	defaultQRImageHost    = "https://qr.tracklane.io"
	defaultFallbackBank   = "Vietcombank"
	defaultWebhookRate    = 60
)

// MismatchPolicy selects how reconciliation treats a webhook whose transfer
// amount differs from the order amount.
type MismatchPolicy string

const (
	// MismatchWarn logs the discrepancy and credits the order amount anyway.
	MismatchWarn MismatchPolicy = "warn"
	// MismatchReject fails the webhook so the gateway retries or escalates.
	MismatchReject MismatchPolicy = "reject"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	RabbitURL   string

	// PaymentsExchange carries events published from the outbox; the booking
	// exchange/queue pair feeds the booking-charge consumer.
	PaymentsExchange string
	BookingExchange  string
	BookingQueue     string

	WebhookAPIKey     string
	WebhookRatePerMin int
	BankAccountNumber string
	BankCode          string
	FallbackBankName  string
	QRImageHost       string

	OrderTTL             time.Duration
	SweepInterval        time.Duration
	OutboxInterval       time.Duration
	OutboxBatch          int
	AmountMismatchPolicy MismatchPolicy

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:  getEnv("APP_NAME", defaultAppName),
		AppEnv:   getEnv("APP_ENV", defaultAppEnv),
		Port:     getEnv("PORT", defaultPort),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		RabbitURL:   os.Getenv("RABBIT_URL"),

		PaymentsExchange: getEnv("PAYMENTS_EXCHANGE", defaultExchange),
		BookingExchange:  getEnv("BOOKING_EXCHANGE", "tracklane.bookings"),
		BookingQueue:     getEnv("BOOKING_QUEUE", defaultBookingQueue),

		WebhookAPIKey:     os.Getenv("WEBHOOK_API_KEY"),
		BankAccountNumber: os.Getenv("BANK_ACCOUNT_NUMBER"),
		BankCode:          getEnv("BANK_CODE", "VCB"),
		FallbackBankName:  getEnv("FALLBACK_BANK_NAME", defaultFallbackBank),
		QRImageHost:       getEnv("QR_IMAGE_HOST", defaultQRImageHost),

		OrderTTL:             defaultOrderTTL,
		SweepInterval:        defaultSweepInterval,
		OutboxInterval:       defaultOutboxInterval,
		OutboxBatch:          defaultOutboxBatch,
		AmountMismatchPolicy: MismatchWarn,

		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
	}

	var err error
	if cfg.OrderTTL, err = durationEnv("ORDER_TTL", cfg.OrderTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationEnv("ORDER_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.OutboxInterval, err = durationEnv("OUTBOX_INTERVAL", cfg.OutboxInterval); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.OutboxBatch, err = intEnv("OUTBOX_BATCH", cfg.OutboxBatch); err != nil {
		return Config{}, err
	}
	cfg.WebhookRatePerMin, err = intEnv("WEBHOOK_RATE_PER_MIN", defaultWebhookRate)
	if err != nil {
		return Config{}, err
	}

	switch policy := MismatchPolicy(strings.ToLower(getEnv("AMOUNT_MISMATCH_POLICY", string(MismatchWarn)))); policy {
	case MismatchWarn, MismatchReject:
		cfg.AmountMismatchPolicy = policy
	default:
		return Config{}, fmt.Errorf("invalid AMOUNT_MISMATCH_POLICY %q", policy)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.RabbitURL == "" {
		return Config{}, fmt.Errorf("RABBIT_URL must be set")
	}
	if cfg.WebhookAPIKey == "" {
		return Config{}, fmt.Errorf("WEBHOOK_API_KEY must be set")
	}
	if cfg.BankAccountNumber == "" {
		return Config{}, fmt.Errorf("BANK_ACCOUNT_NUMBER must be set")
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
