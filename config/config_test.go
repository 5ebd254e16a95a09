package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Reconcile.MaxAttempts != 3 || cfg.Reconcile.Delay != 200*time.Millisecond {
		t.Errorf("unexpected reconcile defaults %+v", cfg.Reconcile)
	}
	if cfg.Membership.Months != 12 || cfg.Membership.Currency != "ARS" {
		t.Errorf("unexpected membership defaults %+v", cfg.Membership)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enrollments.yaml")
	body := `
server:
  port: "9090"
mercadopago:
  access_token: file-token
  signature_tolerance: 5m
membership:
  fee_cents: 1500000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MP_ACCESS_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port from file, got %s", cfg.Server.Port)
	}
	if cfg.MercadoPago.AccessToken != "env-token" {
		t.Errorf("expected env to win, got %s", cfg.MercadoPago.AccessToken)
	}
	if cfg.MercadoPago.SignatureTolerance != 5*time.Minute {
		t.Errorf("expected 5m tolerance, got %s", cfg.MercadoPago.SignatureTolerance)
	}
	if cfg.Membership.FeeCents != 1500000 {
		t.Errorf("expected fee from file, got %d", cfg.Membership.FeeCents)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:    DatabaseConfig{URL: "postgres://localhost/enrollments"},
			MercadoPago: MercadoPagoConfig{AccessToken: "tok", WebhookSecret: "sec"},
			Security:    SecurityConfig{ServiceAPIKey: "svc"},
			Reconcile:   ReconcileConfig{MaxAttempts: 3},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no database", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"no token", func(c *Config) { c.MercadoPago.AccessToken = "" }, "MP_ACCESS_TOKEN"},
		{"no secret", func(c *Config) { c.MercadoPago.WebhookSecret = "" }, "MP_WEBHOOK_SECRET"},
		{"no service key", func(c *Config) { c.Security.ServiceAPIKey = "" }, "ENROLLMENTS_SERVICE_API_KEY"},
		{"no attempts", func(c *Config) { c.Reconcile.MaxAttempts = 0 }, "RECONCILE_MAX_ATTEMPTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
