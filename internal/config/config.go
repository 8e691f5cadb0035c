package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds everything the binaries read from the environment.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	Currency    string `env:"CURRENCY" envDefault:"jpy"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"settlement-events"`

	RedisAddr         string        `env:"REDIS_ADDR"`
	CheckoutRateLimit int           `env:"CHECKOUT_RATE_LIMIT" envDefault:"10"`
	CheckoutRateSpan  time.Duration `env:"CHECKOUT_RATE_WINDOW" envDefault:"1m"`

	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"30m"`

	// PaymentProvider selects the active adapter: "stripe", "square"
	// or empty to run without checkout.
	PaymentProvider string `env:"PAYMENT_PROVIDER"`
	Stripe          StripeConfig
	Square          SquareConfig

	JWTSecret         string        `env:"JWT_SECRET"`
	TokenExpiry       time.Duration `env:"TOKEN_EXPIRY" envDefault:"12h"`
	AdminEmail        string        `env:"ADMIN_EMAIL"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`

	SMTP SMTPConfig
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

type SquareConfig struct {
	AccessToken  string `env:"SQUARE_ACCESS_TOKEN"`
	SignatureKey string `env:"SQUARE_SIGNATURE_KEY"`
	LocationID   string `env:"SQUARE_LOCATION_ID"`
}

type SMTPConfig struct {
	Host string `env:"SMTP_HOST"`
	Port int    `env:"SMTP_PORT" envDefault:"587"`
	From string `env:"SMTP_FROM"`
	To   string `env:"SMTP_TO"`
}

// Load parses the environment into a Config and validates the parts
// that env tags alone cannot express.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PaymentProvider {
	case "":
	case "stripe":
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			return errors.New("stripe provider selected but STRIPE_SECRET_KEY or STRIPE_WEBHOOK_SECRET is empty")
		}
	case "square":
		if c.Square.AccessToken == "" || c.Square.SignatureKey == "" || c.Square.LocationID == "" {
			return errors.New("square provider selected but SQUARE_ACCESS_TOKEN, SQUARE_SIGNATURE_KEY or SQUARE_LOCATION_ID is empty")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.PaymentProvider)
	}
	if c.CheckoutRateLimit < 0 {
		return errors.New("CHECKOUT_RATE_LIMIT must not be negative")
	}
	if c.ReservationTTL <= 0 {
		return errors.New("RESERVATION_TTL must be positive")
	}
	return nil
}

// ValidateOperatorAuth checks the settings only the API server needs.
func (c *Config) ValidateOperatorAuth() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters long")
	}
	if c.AdminEmail == "" || c.AdminPasswordHash == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD_HASH are required")
	}
	return nil
}

// WebhookURL is the public endpoint payment providers deliver events
// to, derived from the service base URL.
func (c *Config) WebhookURL() string {
	return c.BaseURL + "/webhook"
}
