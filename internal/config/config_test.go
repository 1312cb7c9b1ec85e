package config

import (
	"os"
	"testing"
	"time"
)

var envKeys = []string{
	"APP_PORT", "APP_ENV", "PROFILE_BACKEND", "DATABASE_DSN", "SESSION_BACKEND", "REDIS_ADDR",
	"SESSION_TTL_HOURS", "SESSION_SWEEP_MINUTES", "DEV_TOKEN_SECRET", "GOOGLE_CLIENT_ID",
	"MAX_PAYLOAD_MB", "ALLOWED_ORIGINS", "COOKIE_SECURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Load() Port = %v, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("Load() SessionTTL = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.SweepInterval() != 10*time.Minute {
		t.Errorf("Load() SweepInterval = %v, want 10m", cfg.SweepInterval())
	}
	if cfg.MaxPayloadBytes() != 100<<20 {
		t.Errorf("Load() MaxPayloadBytes = %v, want %v", cfg.MaxPayloadBytes(), 100<<20)
	}
	if cfg.DevTokenSecret != defaultDevSecret {
		t.Errorf("Load() DevTokenSecret = %v, want default in dev", cfg.DevTokenSecret)
	}
	if cfg.CookieSecure {
		t.Error("Load() CookieSecure = true, want false in dev")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SESSION_TTL_HOURS", "48")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.SessionBackend != "redis" || cfg.RedisAddr != "redis:6379" {
		t.Errorf("Load() session backend = %v@%v, want redis@redis:6379", cfg.SessionBackend, cfg.RedisAddr)
	}
	if cfg.SessionTTL() != 48*time.Hour {
		t.Errorf("Load() SessionTTL = %v, want 48h", cfg.SessionTTL())
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Load() AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.DevTokenSecret != "" {
		t.Errorf("Load() DevTokenSecret = %q, want empty outside dev", cfg.DevTokenSecret)
	}
	if !cfg.CookieSecure {
		t.Error("Load() CookieSecure = false, want true in prod")
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_TTL_HOURS", "invalid")
	t.Setenv("SESSION_SWEEP_MINUTES", "-5")

	cfg := Load()

	if cfg.SessionTTLHours != 24 {
		t.Errorf("Load() SessionTTLHours = %v, want 24 (default)", cfg.SessionTTLHours)
	}
	if cfg.SessionSweepMinutes != 10 {
		t.Errorf("Load() SessionSweepMinutes = %v, want 10 (default)", cfg.SessionSweepMinutes)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:                "8080",
		Env:                 "dev",
		ProfileBackend:      "memory",
		SessionBackend:      "memory",
		SessionTTLHours:     24,
		SessionSweepMinutes: 10,
		PingIntervalSeconds: 25,
		PongTimeoutSeconds:  60,
		DevTokenSecret:      defaultDevSecret,
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid dev config", func(c *Config) {}, false},
		{"valid prod config", func(c *Config) {
			c.Env = "prod"
			c.GoogleClientID = "client"
			c.DevTokenSecret = ""
		}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"unknown profile backend", func(c *Config) { c.ProfileBackend = "sqlite" }, true},
		{"postgres without dsn", func(c *Config) { c.ProfileBackend = "postgres"; c.DatabaseDSN = "" }, true},
		{"mongo without uri", func(c *Config) { c.ProfileBackend = "mongo" }, true},
		{"redis without addr", func(c *Config) { c.SessionBackend = "redis" }, true},
		{"unknown session backend", func(c *Config) { c.SessionBackend = "etcd" }, true},
		{"zero ttl", func(c *Config) { c.SessionTTLHours = 0 }, true},
		{"ping not below pong", func(c *Config) { c.PingIntervalSeconds = 60 }, true},
		{"ping above pong", func(c *Config) { c.PingIntervalSeconds = 90 }, true},
		{"zero ping interval", func(c *Config) { c.PingIntervalSeconds = 0 }, true},
		{"no verifier", func(c *Config) { c.DevTokenSecret = "" }, true},
		{"prod without google", func(c *Config) { c.Env = "prod"; c.DevTokenSecret = "" }, true},
		{"default secret in prod", func(c *Config) { c.Env = "prod"; c.GoogleClientID = "client" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
