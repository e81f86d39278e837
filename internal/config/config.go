package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
)

// Config holds every value the process reads from its environment.
// It is built once at startup and passed by reference; components never
// reach into the environment themselves.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Room access token signing.
	TokenSigningKey string        `env:"TOKEN_SIGNING_KEY"`
	TokenKeyID      string        `env:"TOKEN_KEY_ID" envDefault:"primary"`
	TokenLifetime   time.Duration `env:"TOKEN_LIFETIME" envDefault:"24h"`

	// API auth (bearer tokens on the protected route group).
	JWTSecret string `env:"JWT_SECRET"`

	// Room provider (video rooms + recordings).
	RoomProviderBaseURL string        `env:"ROOM_PROVIDER_BASE_URL"`
	RoomProviderAPIKey  string        `env:"ROOM_PROVIDER_API_KEY"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// Booking provider (read-only, OAuth with refresh-on-401).
	BookingProviderBaseURL string `env:"BOOKING_PROVIDER_BASE_URL"`
	BookingRefreshToken    string `env:"BOOKING_REFRESH_TOKEN"`

	// Payment webhook (credit purchase intake).
	RazorpayWebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`

	// Background jobs.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10m"`
	ReconcileWindow   time.Duration `env:"RECONCILE_WINDOW" envDefault:"72h"`
	NoShowInterval    time.Duration `env:"NOSHOW_SWEEP_INTERVAL" envDefault:"5m"`
}

// Load reads .env (when present) and the process environment.
// Absent credentials are a hard failure here rather than a runtime
// surprise inside the component that needed them.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}

	required := map[string]string{
		"DATABASE_URL":           cfg.DatabaseURL,
		"TOKEN_SIGNING_KEY":      cfg.TokenSigningKey,
		"JWT_SECRET":             cfg.JWTSecret,
		"ROOM_PROVIDER_BASE_URL": cfg.RoomProviderBaseURL,
		"ROOM_PROVIDER_API_KEY":  cfg.RoomProviderAPIKey,
	}
	for name, value := range required {
		if value == "" {
			return nil, fmt.Errorf("%w: %s is required", apperrors.ErrConfig, name)
		}
	}

	if cfg.TokenLifetime <= 0 {
		return nil, fmt.Errorf("%w: TOKEN_LIFETIME must be positive", apperrors.ErrConfig)
	}

	return cfg, nil
}
