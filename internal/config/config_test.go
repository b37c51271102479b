package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LINKVAULT_DATABASE_URL", "postgres://u:p@localhost:5432/linkvault")
	t.Setenv("LINKVAULT_REDIS_ADDR", "localhost:6379")
	t.Setenv("LINKVAULT_JWT_SECRET", testSecret)
}

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		wantPanic bool
	}{
		{name: "variable set", key: "LV_TEST_VAR", value: "test_value"},
		{name: "variable not set", key: "LV_TEST_VAR_MISSING", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{name: "valid duration", key: "LV_TEST_DURATION", value: "5s", def: time.Second, expected: 5 * time.Second},
		{name: "invalid duration uses default", key: "LV_TEST_DURATION_INVALID", value: "invalid", def: 10 * time.Second, expected: 10 * time.Second},
		{name: "missing variable uses default", key: "LV_TEST_DURATION_MISSING", def: 15 * time.Second, expected: 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			if got := mustDuration(tt.key, tt.def); got != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "true value", value: "true", expected: true},
		{name: "false value", value: "0", def: true, expected: false},
		{name: "garbage uses default", value: "maybe", def: true, expected: true},
		{name: "missing uses default", def: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("LV_TEST_BOOL", tt.value)
			}
			if got := mustBool("LV_TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("mustBool() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(` https://a.example , "https://b.example",, 'x' `)
	want := []string{"https://a.example", "https://b.example", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitAndTrim() = %v, want %v", got, want)
	}
	if splitAndTrim("") != nil {
		t.Error("splitAndTrim(\"\") should be nil")
	}
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg := Load()

	if cfg.ListenPort != ":8080" {
		t.Errorf("ListenPort = %q, want :8080", cfg.ListenPort)
	}
	if cfg.AIProvider != "none" {
		t.Errorf("AIProvider = %q, want none", cfg.AIProvider)
	}
	if cfg.NotifierMaxAttempts != 3 {
		t.Errorf("NotifierMaxAttempts = %d, want 3", cfg.NotifierMaxAttempts)
	}
	if cfg.JWTIssuer != "linkvault" {
		t.Errorf("JWTIssuer = %q, want linkvault", cfg.JWTIssuer)
	}
	if !cfg.MigrateOnStart {
		t.Error("MigrateOnStart should default to true")
	}
}

func TestLoadNormalizesProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LINKVAULT_AI_PROVIDER", " Gemini ")
	t.Setenv("LINKVAULT_AI_API_KEY", "k")

	cfg := Load()

	if cfg.AIProvider != "gemini" {
		t.Errorf("AIProvider = %q, want gemini", cfg.AIProvider)
	}
}

func TestLoadRedisTuningKeys(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LINKVAULT_REDIS_POOL_SIZE", "7")
	t.Setenv("LINKVAULT_REDIS_DIAL_TIMEOUT", "250ms")
	t.Setenv("REDIS_POOL_SIZE", "99")

	cfg := Load()

	if cfg.RedisPoolSize != 7 {
		t.Errorf("RedisPoolSize = %d, want 7", cfg.RedisPoolSize)
	}
	if cfg.RedisDT != 250*time.Millisecond {
		t.Errorf("RedisDT = %v, want 250ms", cfg.RedisDT)
	}
}

func TestLoadPanicsOnShortSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LINKVAULT_JWT_SECRET", "short")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Load() should have panicked")
		}
		if !strings.Contains(r.(string), "LINKVAULT_JWT_SECRET") {
			t.Errorf("panic = %v, want mention of LINKVAULT_JWT_SECRET", r)
		}
	}()
	Load()
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			RedisAddr:           "localhost:6379",
			JWTSecret:           testSecret,
			AIProvider:          "none",
			NotifierMaxAttempts: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no redis", mutate: func(c *Config) { c.RedisAddr = "" }, wantErr: "REDIS"},
		{name: "redis url is enough", mutate: func(c *Config) { c.RedisAddr = ""; c.RedisURL = "redis://localhost:6379/0" }},
		{name: "password required", mutate: func(c *Config) { c.RedisPasswordRequired = true }, wantErr: "REDIS_PASSWORD"},
		{name: "gemini needs key", mutate: func(c *Config) { c.AIProvider = "gemini" }, wantErr: "API_KEY"},
		{name: "anthropic with key", mutate: func(c *Config) { c.AIProvider = "anthropic"; c.AIAPIKey = "k" }},
		{name: "provider case is ignored", mutate: func(c *Config) { c.AIProvider = "Gemini"; c.AIAPIKey = "k" }},
		{name: "unknown provider", mutate: func(c *Config) { c.AIProvider = "openai" }, wantErr: "unknown"},
		{name: "zero attempts", mutate: func(c *Config) { c.NotifierMaxAttempts = 0 }, wantErr: "MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	c := Config{JWTSecret: testSecret, DatabaseURL: "postgres://u:p@h/db", AIAPIKey: "k", RedisPassword: "pw"}
	r := c.Redacted()
	for _, v := range []string{r.JWTSecret, r.DatabaseURL, r.AIAPIKey, r.RedisPassword} {
		if v != "***REDACTED***" {
			t.Errorf("field not redacted: %q", v)
		}
	}
	if c.JWTSecret != testSecret {
		t.Error("Redacted() must not modify the receiver")
	}
}
