// Package config handles loading and managing application configuration.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	MercadoPago MercadoPagoConfig `mapstructure:"mercadopago"`
	Core        CoreConfig        `mapstructure:"core"`
	Security    SecurityConfig    `mapstructure:"security"`
	Membership  MembershipConfig  `mapstructure:"membership"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	GinMode         string        `mapstructure:"gin_mode"` // "debug", "release", or "test"
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// MercadoPagoConfig holds Checkout Pro and webhook settings.
type MercadoPagoConfig struct {
	AccessToken        string        `mapstructure:"access_token"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	NotificationURL    string        `mapstructure:"notification_url"`
	SuccessURL         string        `mapstructure:"success_url"`
	FailureURL         string        `mapstructure:"failure_url"`
	PendingURL         string        `mapstructure:"pending_url"`
	UseSandbox         bool          `mapstructure:"use_sandbox"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SignatureTolerance time.Duration `mapstructure:"signature_tolerance"`
}

// CoreConfig holds FitStack Core API configuration.
type CoreConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ServiceAPIKey string `mapstructure:"service_api_key"`
}

// MembershipConfig holds the annual membership offer.
type MembershipConfig struct {
	FeeCents int64  `mapstructure:"fee_cents"`
	Currency string `mapstructure:"currency"`
	Months   int    `mapstructure:"months"`
}

// ReconcileConfig bounds the settlement retry loop.
type ReconcileConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// envKeys maps config keys to the environment variables that override them.
var envKeys = map[string]string{
	"server.port":                     "PORT",
	"server.gin_mode":                 "GIN_MODE",
	"server.shutdown_timeout":         "SHUTDOWN_TIMEOUT",
	"database.url":                    "DATABASE_URL",
	"database.max_conns":              "DATABASE_MAX_CONNS",
	"database.min_conns":              "DATABASE_MIN_CONNS",
	"mercadopago.access_token":        "MP_ACCESS_TOKEN",
	"mercadopago.webhook_secret":      "MP_WEBHOOK_SECRET",
	"mercadopago.notification_url":    "MP_NOTIFICATION_URL",
	"mercadopago.success_url":         "MP_SUCCESS_URL",
	"mercadopago.failure_url":         "MP_FAILURE_URL",
	"mercadopago.pending_url":         "MP_PENDING_URL",
	"mercadopago.use_sandbox":         "MP_USE_SANDBOX",
	"mercadopago.timeout":             "MP_TIMEOUT",
	"mercadopago.signature_tolerance": "MP_SIGNATURE_TOLERANCE",
	"core.base_url":                   "FITSTACK_CORE_URL",
	"core.api_key":                    "FITSTACK_CORE_API_KEY",
	"core.timeout":                    "FITSTACK_CORE_TIMEOUT",
	"security.service_api_key":        "ENROLLMENTS_SERVICE_API_KEY",
	"membership.fee_cents":            "MEMBERSHIP_FEE_CENTS",
	"membership.currency":             "MEMBERSHIP_CURRENCY",
	"membership.months":               "MEMBERSHIP_MONTHS",
	"reconcile.max_attempts":          "RECONCILE_MAX_ATTEMPTS",
	"reconcile.delay":                 "RECONCILE_DELAY",
	"reconcile.max_delay":             "RECONCILE_MAX_DELAY",
	"reconcile.timeout":               "RECONCILE_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.gin_mode", "debug")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("mercadopago.timeout", "15s")
	v.SetDefault("mercadopago.signature_tolerance", "10m")
	v.SetDefault("core.base_url", "http://localhost:8000")
	v.SetDefault("core.timeout", "10s")
	v.SetDefault("membership.currency", "ARS")
	v.SetDefault("membership.months", 12)
	v.SetDefault("reconcile.max_attempts", 3)
	v.SetDefault("reconcile.delay", "200ms")
	v.SetDefault("reconcile.max_delay", "2s")
	v.SetDefault("reconcile.timeout", "30s")
}

// Load reads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if !strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml") {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.MercadoPago.AccessToken == "" {
		errs = append(errs, errors.New("MP_ACCESS_TOKEN is required"))
	}
	if c.MercadoPago.WebhookSecret == "" {
		errs = append(errs, errors.New("MP_WEBHOOK_SECRET is required"))
	}
	if c.Security.ServiceAPIKey == "" {
		errs = append(errs, errors.New("ENROLLMENTS_SERVICE_API_KEY is required"))
	}
	if c.Reconcile.MaxAttempts < 1 {
		errs = append(errs, errors.New("RECONCILE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Membership.FeeCents < 0 {
		errs = append(errs, errors.New("MEMBERSHIP_FEE_CENTS must not be negative"))
	}

	if c.Core.APIKey == "" {
		log.Println("Warning: FITSTACK_CORE_API_KEY not set")
	}
	if c.MercadoPago.NotificationURL == "" {
		log.Println("Warning: MP_NOTIFICATION_URL not set, webhooks rely on the account-level URL")
	}
	if c.Membership.FeeCents == 0 {
		log.Println("Warning: MEMBERSHIP_FEE_CENTS not set, membership checkout disabled")
	}
	return errors.Join(errs...)
}
