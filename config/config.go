package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Stripe   StripeConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// StripeConfig carries the two distinct secrets: the API key for server-side
// calls and the signing secret used only for webhook verification.
type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	SuccessURL        string
	CancelURL         string
	ServicePriceCents int64
	Currency          string
}

type AdminConfig struct {
	APIToken string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         envOr("PORT", "8080"),
			Env:          envOr("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             envOr("DATABASE_DSN", "nexus:nexus@tcp(localhost:3306)/nexuspay?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		Stripe: StripeConfig{
			SecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:        envOr("CHECKOUT_SUCCESS_URL", "https://militarydisabilitynexus.com/payment-success"),
			CancelURL:         envOr("CHECKOUT_CANCEL_URL", "https://militarydisabilitynexus.com/payment-cancelled"),
			ServicePriceCents: envInt64("SERVICE_PRICE_CENTS", 19900),
			Currency:          envOr("SERVICE_CURRENCY", "usd"),
		},
		Admin: AdminConfig{
			APIToken: os.Getenv("ADMIN_API_TOKEN"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
