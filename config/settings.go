package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvDatabaseURL          = "DATABASE_URL"
	EnvFeePercentage        = "PLATFORM_FEE_PERCENTAGE"
	EnvStripeAPIKey         = "STRIPE_API_KEY"
	EnvStripeWebhookSecret  = "STRIPE_WEBHOOK_SECRET"
	EnvListenAddr           = "LISTEN_ADDR"
	EnvCheckoutSuccessURL   = "CHECKOUT_SUCCESS_URL"
	EnvCheckoutCancelURL    = "CHECKOUT_CANCEL_URL"
	EnvSessionCreateTimeout = "SESSION_CREATE_TIMEOUT"
	EnvWebhookTolerance     = "WEBHOOK_TOLERANCE"
	EnvDedupPath            = "DEDUP_DB_PATH"
	EnvOTLPEndpoint         = "OTLP_ENDPOINT"
)

const (
	defaultFeePercentage        = 10.0
	defaultListenAddr           = ":8080"
	defaultSessionCreateTimeout = 10 * time.Second
	defaultWebhookTolerance     = 5 * time.Minute
	defaultDedupPath            = "settlement-dedup.db"
)

var (
	// ErrMissingStripeAPIKey is returned when STRIPE_API_KEY is not set.
	ErrMissingStripeAPIKey = errors.New("STRIPE_API_KEY must be set")

	// ErrMissingWebhookSecret is returned when STRIPE_WEBHOOK_SECRET is not set.
	ErrMissingWebhookSecret = errors.New("STRIPE_WEBHOOK_SECRET must be set")

	// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
	ErrMissingDatabaseURL = errors.New("DATABASE_URL must be set")
)

// Config holds the service configuration read from the environment.
type Config struct {
	DatabaseURL          string
	FeePercentage        float64
	StripeAPIKey         string
	StripeWebhookSecret  string
	ListenAddr           string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
	SessionCreateTimeout time.Duration
	WebhookTolerance     time.Duration
	DedupPath            string
	OTLPEndpoint         string
}

// Load reads the service configuration from environment variables,
// applying defaults for everything except the credentials and the database.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:          os.Getenv(EnvDatabaseURL),
		FeePercentage:        defaultFeePercentage,
		StripeAPIKey:         os.Getenv(EnvStripeAPIKey),
		StripeWebhookSecret:  os.Getenv(EnvStripeWebhookSecret),
		ListenAddr:           envOrDefault(EnvListenAddr, defaultListenAddr),
		CheckoutSuccessURL:   os.Getenv(EnvCheckoutSuccessURL),
		CheckoutCancelURL:    os.Getenv(EnvCheckoutCancelURL),
		SessionCreateTimeout: defaultSessionCreateTimeout,
		WebhookTolerance:     defaultWebhookTolerance,
		DedupPath:            envOrDefault(EnvDedupPath, defaultDedupPath),
		OTLPEndpoint:         os.Getenv(EnvOTLPEndpoint),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}
	if cfg.StripeAPIKey == "" {
		return Config{}, ErrMissingStripeAPIKey
	}
	if cfg.StripeWebhookSecret == "" {
		return Config{}, ErrMissingWebhookSecret
	}

	if raw := os.Getenv(EnvFeePercentage); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvFeePercentage, err)
		}
		cfg.FeePercentage = parsed
	}

	if raw := os.Getenv(EnvSessionCreateTimeout); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvSessionCreateTimeout, err)
		}
		cfg.SessionCreateTimeout = parsed
	}

	if raw := os.Getenv(EnvWebhookTolerance); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvWebhookTolerance, err)
		}
		cfg.WebhookTolerance = parsed
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
