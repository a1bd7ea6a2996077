package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.5")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.5 {
		t.Fatalf("expected 0.5, got %v", v)
	}

	t.Setenv("TEST_FLOAT", "fast")
	if _, err := envFloat("TEST_FLOAT", 0); err == nil || err.Error() != `TEST_FLOAT="fast" is not a valid number` {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " restart_service, ,scale_pods ")
	got := envList("TEST_LIST")
	if len(got) != 2 || got[0] != "restart_service" || got[1] != "scale_pods" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.MaxLoops != 3 {
		t.Fatalf("expected default max loops 3, got %d", cfg.MaxLoops)
	}
	if cfg.MemoryLimit != 3 {
		t.Fatalf("expected default memory limit 3, got %d", cfg.MemoryLimit)
	}
	if cfg.ModelPrimary != "gemini-2.5-flash-lite" || cfg.ModelFallback != "gemini-2.0-flash-lite" {
		t.Fatalf("unexpected default models: %s / %s", cfg.ModelPrimary, cfg.ModelFallback)
	}
	if cfg.BackendTimeout != 60*time.Second {
		t.Fatalf("expected 60s backend timeout, got %s", cfg.BackendTimeout)
	}
	if cfg.HTTPAddr != ":8080" || cfg.HTTPWriteTimeout != 10*time.Minute {
		t.Fatalf("unexpected http defaults: %s / %s", cfg.HTTPAddr, cfg.HTTPWriteTimeout)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("AIOPS_MAX_LOOPS", "abc")
	t.Setenv("AIOPS_MEMORY_LIMIT", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "AIOPS_MAX_LOOPS") || !strings.Contains(got, "AIOPS_MEMORY_LIMIT") {
		t.Fatalf("error should mention both variables, got: %s", got)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero loops", func(c *Config) { c.MaxLoops = 0 }, "AIOPS_MAX_LOOPS"},
		{"zero memory limit", func(c *Config) { c.MemoryLimit = 0 }, "AIOPS_MEMORY_LIMIT"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "AIOPS_DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = DriverPostgres; c.DatabaseURL = "" }, "DATABASE_URL"},
		{"unknown approval mode", func(c *Config) { c.ApprovalMode = "maybe" }, "AIOPS_APPROVAL_MODE"},
		{"negative rps", func(c *Config) { c.BackendRPS = -1 }, "AIOPS_BACKEND_RPS"},
		{"zero burst", func(c *Config) { c.BackendBurst = 0 }, "AIOPS_BACKEND_BURST"},
		{"zero http write timeout", func(c *Config) { c.HTTPWriteTimeout = 0 }, "AIOPS_HTTP_WRITE_TIMEOUT"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "AIOPS_LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q should mention %s", err, tt.want)
			}
		})
	}
}
