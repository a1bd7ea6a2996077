// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Persistence drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Approval modes.
const (
	ApprovalAuto        = "auto"
	ApprovalInteractive = "interactive"
	ApprovalPolicy      = "policy"
	ApprovalDeny        = "deny"
)

// Config holds all application configuration.
type Config struct {
	// Generative backend settings.
	ModelPrimary   string
	ModelFallback  string
	GoogleAPIKey   string
	BackendTimeout time.Duration
	BackendRPS     float64 // Calls per second; 0 disables pacing.
	BackendBurst   int

	// Loop and memory limits.
	MaxLoops    int // Max remediation attempts per run.
	MemoryLimit int // Incidents kept before compaction.

	// Persistence settings.
	DBDriver    string
	DBPath      string // SQLite file; ":memory:" for a throwaway database.
	DatabaseURL string // Postgres DSN when DBDriver is postgres.

	// Tool gate settings.
	ApprovalMode    string
	ApprovalTimeout time.Duration
	ApprovalAllow   []string // Tools the policy gate approves.
	ToolCatalogPath string   // Optional YAML file overriding canned tool results.

	// RAGKeyword pins the history search keyword. Empty derives it from the input.
	RAGKeyword string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// HTTP settings, used by serve mode.
	HTTPAddr         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration // Must cover a full run.

	// Operational settings.
	LogLevel       string
	LogFormat      string // "console" or "json"
	RunConcurrency int
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ModelPrimary:    envStr("AIOPS_MODEL_PRIMARY", "gemini-2.5-flash-lite"),
		ModelFallback:   envStr("AIOPS_MODEL_FALLBACK", "gemini-2.0-flash-lite"),
		GoogleAPIKey:    envStr("GOOGLE_API_KEY", ""),
		DBDriver:        envStr("AIOPS_DB_DRIVER", DriverSQLite),
		DBPath:          envStr("AIOPS_DB_PATH", "ops_sre.db"),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		ApprovalMode:    envStr("AIOPS_APPROVAL_MODE", ApprovalAuto),
		ApprovalAllow:   envList("AIOPS_APPROVAL_ALLOW"),
		ToolCatalogPath: envStr("AIOPS_TOOL_CATALOG", ""),
		RAGKeyword:      envStr("AIOPS_RAG_KEYWORD", ""),
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "aiops-agent"),
		HTTPAddr:        envStr("AIOPS_HTTP_ADDR", ":8080"),
		LogLevel:        envStr("AIOPS_LOG_LEVEL", "info"),
		LogFormat:       envStr("AIOPS_LOG_FORMAT", "console"),
	}

	var err error
	cfg.MaxLoops, err = envInt("AIOPS_MAX_LOOPS", 3)
	collect(err)
	cfg.MemoryLimit, err = envInt("AIOPS_MEMORY_LIMIT", 3)
	collect(err)
	cfg.RunConcurrency, err = envInt("AIOPS_RUN_CONCURRENCY", 2)
	collect(err)
	cfg.BackendTimeout, err = envDuration("AIOPS_BACKEND_TIMEOUT", 60*time.Second)
	collect(err)
	cfg.BackendRPS, err = envFloat("AIOPS_BACKEND_RPS", 0)
	collect(err)
	cfg.BackendBurst, err = envInt("AIOPS_BACKEND_BURST", 1)
	collect(err)
	cfg.ApprovalTimeout, err = envDuration("AIOPS_APPROVAL_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.HTTPReadTimeout, err = envDuration("AIOPS_HTTP_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.HTTPWriteTimeout, err = envDuration("AIOPS_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	collect(err)
	cfg.OTELInsecure, err = envBool("AIOPS_OTEL_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.MaxLoops < 1 {
		return fmt.Errorf("config: AIOPS_MAX_LOOPS must be at least 1")
	}
	if c.MemoryLimit < 1 {
		return fmt.Errorf("config: AIOPS_MEMORY_LIMIT must be at least 1")
	}
	if c.RunConcurrency < 1 {
		return fmt.Errorf("config: AIOPS_RUN_CONCURRENCY must be at least 1")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("config: AIOPS_BACKEND_TIMEOUT must be positive")
	}
	if c.BackendRPS < 0 {
		return fmt.Errorf("config: AIOPS_BACKEND_RPS must not be negative")
	}
	if c.BackendBurst < 1 {
		return fmt.Errorf("config: AIOPS_BACKEND_BURST must be at least 1")
	}
	if c.HTTPWriteTimeout <= 0 {
		return fmt.Errorf("config: AIOPS_HTTP_WRITE_TIMEOUT must be positive")
	}
	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("config: AIOPS_APPROVAL_TIMEOUT must be positive")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("config: AIOPS_DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown AIOPS_DB_DRIVER %q", c.DBDriver)
	}
	switch c.ApprovalMode {
	case ApprovalAuto, ApprovalInteractive, ApprovalPolicy, ApprovalDeny:
	default:
		return fmt.Errorf("config: unknown AIOPS_APPROVAL_MODE %q", c.ApprovalMode)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown AIOPS_LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
