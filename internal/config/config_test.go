package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "comms"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "iss", "aud"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.App.Storage != "postgres" {
		t.Fatalf("expected postgres storage default, got %q", c.App.Storage)
	}
	cc := c.Comms
	if cc.MaxRetries != 3 || cc.InitialDelay != 60*time.Second || cc.MaxDelay != 900*time.Second || cc.BackoffBase != 5 {
		t.Fatalf("unexpected retry defaults: %+v", cc)
	}
	if cc.AttemptTimeout != 30*time.Second || cc.BatchWindow != 300*time.Second || cc.SchedulerInterval != 30*time.Second {
		t.Fatalf("unexpected timing defaults: %+v", cc)
	}
}

func TestValidate_MemoryStorageSkipsStores(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "local", Port: 8080, Storage: "memory"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	c.App.Env = "production"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "iss", "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "COMMS_STORAGE") {
		t.Fatalf("expected memory storage to be refused in production, got %v", err)
	}
}

func TestValidate_ProductionRequiresAProvider(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "iss", "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "SMTP_HOST or TWILIO_ACCOUNT_SID") {
		t.Fatalf("expected provider error, got %v", err)
	}

	c.SMTP = SMTPConfig{Host: "smtp.example.com", FromAddress: "plans@example.com"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_TwilioCredentialsTogether(t *testing.T) {
	c := validLocal()
	c.Twilio.AccountSID = "AC123"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for sid without token")
	}
}

func TestValidate_RejectsBadBackoff(t *testing.T) {
	c := validLocal()
	c.Comms.BackoffBase = 0.5
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "COMMS_BACKOFF_BASE") {
		t.Fatalf("expected backoff error, got %v", err)
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("COMMS_STORAGE", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("COMMS_MAX_RETRIES", "5")
	t.Setenv("COMMS_JITTER", "false")
	t.Setenv("COMMS_RATE_SMS", "0.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.App.Port != 9090 || c.Comms.MaxRetries != 5 || c.Comms.Jitter || c.Comms.RateSMS != 0.5 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", c.Kafka.Brokers)
	}
}

func TestLoad_ReportsParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "not-a-port")
	t.Setenv("COMMS_JITTER", "maybe")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "COMMS_JITTER") {
		t.Fatalf("expected parse errors, got %v", err)
	}
}
