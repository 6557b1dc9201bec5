package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dating"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Fatalf("expected joined errors to mention JWT_SECRET, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Calls.CoinPrice != 50 || c.Calls.Duration != 300*time.Second || c.Calls.RingTimeout != 30*time.Second {
		t.Fatalf("unexpected call defaults: %+v", c.Calls)
	}
	if c.Calls.MaxConcurrentPerUser != 1 {
		t.Fatalf("expected one concurrent call per user, got %d", c.Calls.MaxConcurrentPerUser)
	}
	if c.Media.UIDRange == 0 || c.Media.TokenTTL != time.Hour {
		t.Fatalf("unexpected media defaults: %+v", c.Media)
	}
	if c.MediaEnabled() {
		t.Fatalf("media must be disabled without credentials")
	}
}

func TestValidate_RejectsNegativePrice(t *testing.T) {
	c := validConfig("dev")
	c.Calls.CoinPrice = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative coin price")
	}
}

func TestLoad_ReadsCallPolicyFromEnv(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "dating")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_COIN_PRICE", "80")
	t.Setenv("CALL_RING_TIMEOUT_SECONDS", "20")
	t.Setenv("CALL_DURATION_SECONDS", "600")
	t.Setenv("CALL_MAX_CONCURRENT_PER_USER", "1")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Calls.CoinPrice != 80 || c.Calls.RingTimeout != 20*time.Second || c.Calls.Duration != 600*time.Second {
		t.Fatalf("unexpected call config: %+v", c.Calls)
	}
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "dating")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_EARNINGS_FLUSH_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
