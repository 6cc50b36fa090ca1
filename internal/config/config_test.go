package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callflow"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected access ttl default, got %v", c.Auth.AccessTokenTTL)
	}
	if c.Dedup.Window != 5*time.Minute || c.Dedup.Bucket != 5*time.Second {
		t.Fatalf("expected dedup defaults, got %+v", c.Dedup)
	}
	if c.Dispatch.DrainInterval != 10*time.Second || c.Dispatch.BatchLimit != 10 {
		t.Fatalf("expected dispatch defaults, got %+v", c.Dispatch)
	}
}

func TestValidate_BucketMustFitWindow(t *testing.T) {
	c := validConfig()
	c.Dedup.Window = 10 * time.Second
	c.Dedup.Bucket = 10 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for bucket >= window")
	}
}

func TestValidate_RedisOptional(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error without redis, got %v", err)
	}
	if c.RedisAddr() != "" {
		t.Fatalf("expected empty redis addr, got %q", c.RedisAddr())
	}

	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error with redis, got %v", err)
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := "host=localhost port=5432 user=postgres password=x dbname=callflow sslmode=disable"
	if got := c.PostgresDSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}
