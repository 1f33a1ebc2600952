// Package config loads freightflow configuration from the environment.
// Missing database path or LLM credentials are process-start fatal unless
// explicitly bypassed for offline runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the resolved process configuration.
type Config struct {
	// Persistence
	DBPath string

	// LLM credentials. At least one is required unless AllowNoLLM is set.
	AnthropicAPIKey string
	GeminiAPIKey    string

	// Model tier names for the escalation ladder.
	HaikuModel  string
	SonnetModel string
	OpusModel   string

	// HTTP surface
	InternalAPIKey string
	BypassAuth     bool
	ListenAddr     string

	// Pipeline tuning
	Concurrency int
	CacheTTL    time.Duration
	RetryCap    int
	YearMin     int
	YearMax     int

	// Rule seeds
	SeedDir string

	// AllowNoLLM permits pattern-only operation (offline / test runs).
	AllowNoLLM bool
}

// Defaults mirror production behavior.
const (
	DefaultConcurrency = 5
	DefaultCacheTTL    = 5 * time.Minute
	DefaultRetryCap    = 3
	DefaultYearMin     = 2024
	DefaultYearMax     = 2028
	DefaultListenAddr  = ":8080"

	DefaultHaikuModel  = "claude-haiku-4-5"
	DefaultSonnetModel = "claude-sonnet-4-5"
	DefaultOpusModel   = "claude-opus-4-1"
)

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:          os.Getenv("FREIGHTFLOW_DB"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		HaikuModel:      envOr("FREIGHTFLOW_HAIKU_MODEL", DefaultHaikuModel),
		SonnetModel:     envOr("FREIGHTFLOW_SONNET_MODEL", DefaultSonnetModel),
		OpusModel:       envOr("FREIGHTFLOW_OPUS_MODEL", DefaultOpusModel),
		InternalAPIKey:  os.Getenv("INTERNAL_API_KEY"),
		BypassAuth:      os.Getenv("BYPASS_AUTH") == "true",
		ListenAddr:      envOr("FREIGHTFLOW_ADDR", DefaultListenAddr),
		Concurrency:     envInt("FREIGHTFLOW_CONCURRENCY", DefaultConcurrency),
		CacheTTL:        envDuration("FREIGHTFLOW_CACHE_TTL", DefaultCacheTTL),
		RetryCap:        envInt("FREIGHTFLOW_RETRY_CAP", DefaultRetryCap),
		YearMin:         envInt("FREIGHTFLOW_YEAR_MIN", DefaultYearMin),
		YearMax:         envInt("FREIGHTFLOW_YEAR_MAX", DefaultYearMax),
		SeedDir:         os.Getenv("FREIGHTFLOW_SEED_DIR"),
		AllowNoLLM:      os.Getenv("FREIGHTFLOW_ALLOW_NO_LLM") == "true",
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the process-start fatal rules.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("FREIGHTFLOW_DB is required")
	}
	if c.AnthropicAPIKey == "" && c.GeminiAPIKey == "" && !c.AllowNoLLM {
		return fmt.Errorf("no LLM credential configured: set ANTHROPIC_API_KEY or GEMINI_API_KEY (or FREIGHTFLOW_ALLOW_NO_LLM=true for pattern-only runs)")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.RetryCap < 1 {
		return fmt.Errorf("retry cap must be >= 1, got %d", c.RetryCap)
	}
	if c.YearMin > c.YearMax {
		return fmt.Errorf("year window inverted: %d > %d", c.YearMin, c.YearMax)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
