package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from the environment. The Stripe secrets are
// mandatory: a missing webhook secret must stop the process at boot
// rather than fall back to anything usable.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"pia-backend"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage backend selection: DATABASE_URL picks SQLite, BOLT_PATH
	// picks bbolt, otherwise the JSON file at LicensesFile is used.
	LicensesFile string `envconfig:"LICENSES_FILE" default:"licenses.json"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	BoltPath     string `envconfig:"BOLT_PATH"`

	StripeAPIKey        string `envconfig:"STRIPE_API_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	ValidateRateLimit  int           `envconfig:"VALIDATE_RATE_LIMIT" default:"60"`
	ValidateRateWindow time.Duration `envconfig:"VALIDATE_RATE_WINDOW" default:"1m"`

	SMTPHost  string `envconfig:"SMTP_HOST"`
	SMTPPort  string `envconfig:"SMTP_PORT"`
	SMTPUser  string `envconfig:"SMTP_USER"`
	SMTPPass  string `envconfig:"SMTP_PASS"`
	EmailFrom string `envconfig:"EMAIL_FROM" default:"licenses@pia.app"`
}

func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	// envconfig's required tag only catches unset variables. A value
	// set to the empty string, which a blank .env line produces, must
	// fail the same way.
	if cfg.StripeAPIKey == "" {
		return nil, errors.New("STRIPE_API_KEY must not be empty")
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET must not be empty")
	}

	if cfg.DatabaseURL != "" && cfg.BoltPath != "" {
		return nil, errors.New("DATABASE_URL and BOLT_PATH are mutually exclusive")
	}
	if cfg.StoreTimeout <= 0 {
		return nil, errors.New("STORE_TIMEOUT must be positive")
	}

	return &cfg, nil
}
