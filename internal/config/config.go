package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// maxEnvTokens bounds the GH_KEY0..GH_KEYn scan
const maxEnvTokens = 10

// Config holds all runtime configuration parameters
type Config struct {
	SeedLogin         string   `json:"seed_login"`
	MaxHops           *int     `json:"max_hops"`
	Tokens            []string `json:"tokens"`
	APIURL            string   `json:"api_url"`
	RequestTimeoutMs  int      `json:"request_timeout_ms"`
	MaxAttempts       int      `json:"max_attempts"`
	RetryMinMs        int      `json:"retry_min_ms"`
	RetryMaxMs        int      `json:"retry_max_ms"`
	ThrottleMarginMs  int      `json:"throttle_margin_ms"`
	FanoutFactor      float64  `json:"fanout_factor"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	DBPath            string   `json:"db_path"`
	MetricsPath       string   `json:"metrics_path"`
	MetricsAddr       string   `json:"metrics_addr"`
	RedisAddr         string   `json:"redis_addr"`
	BufferWrites      bool     `json:"buffer_writes"`
	Derive            bool     `json:"derive"`
	LogLevel          string   `json:"log_level"`
}

// LoadConfig reads configuration from a JSON file, merges tokens from the
// environment and applies defaults. A missing file is not an error when
// optional is set, so the CLI can run from flags and environment alone.
func LoadConfig(path string, optional bool) (*Config, error) {
	var cfg Config

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg.Tokens = append(cfg.Tokens, TokensFromEnv(os.Getenv)...)
	cfg.Tokens = dedupTokens(cfg.Tokens)

	applyDefaults(&cfg)
	return &cfg, nil
}

// TokensFromEnv collects API tokens from GH_KEY0..GH_KEY9 (stopping at the
// first gap) and from the comma separated GITHUB_TOKENS variable
func TokensFromEnv(getenv func(string) string) []string {
	var tokens []string
	for i := 0; i < maxEnvTokens; i++ {
		tok := strings.TrimSpace(getenv(fmt.Sprintf("GH_KEY%d", i)))
		if tok == "" {
			break
		}
		tokens = append(tokens, tok)
	}
	for tok := range strings.SplitSeq(getenv("GITHUB_TOKENS"), ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func dedupTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.MaxHops == nil {
		hops := 2
		cfg.MaxHops = &hops
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com/graphql"
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 10000
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.RetryMinMs == 0 {
		cfg.RetryMinMs = 100
	}
	if cfg.RetryMaxMs == 0 {
		cfg.RetryMaxMs = 2000
	}
	if cfg.ThrottleMarginMs == 0 {
		cfg.ThrottleMarginMs = 10000
	}
	if cfg.FanoutFactor == 0 {
		cfg.FanoutFactor = 1.4
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "devrank.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks that required fields are present and values are sensible.
// It runs after CLI overrides have been applied.
func (cfg *Config) Validate() error {
	if cfg.SeedLogin == "" {
		return fmt.Errorf("seed_login is required")
	}
	if cfg.MaxHops == nil || *cfg.MaxHops < 0 {
		return fmt.Errorf("max_hops must be >= 0")
	}
	if len(cfg.Tokens) == 0 {
		return fmt.Errorf("at least one API token is required (tokens, GH_KEY0.., or GITHUB_TOKENS)")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1")
	}
	if cfg.RetryMinMs < 0 || cfg.RetryMaxMs < cfg.RetryMinMs {
		return fmt.Errorf("retry_max_ms must be >= retry_min_ms >= 0")
	}
	if cfg.FanoutFactor < 1 {
		return fmt.Errorf("fanout_factor must be >= 1")
	}
	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0")
	}
	return nil
}

// Hops returns the configured hop budget
func (cfg *Config) Hops() int {
	if cfg.MaxHops == nil {
		return 0
	}
	return *cfg.MaxHops
}

// SetHops overrides the hop budget
func (cfg *Config) SetHops(h int) {
	cfg.MaxHops = &h
}

func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
}

func (cfg *Config) RetryMin() time.Duration {
	return time.Duration(cfg.RetryMinMs) * time.Millisecond
}

func (cfg *Config) RetryMax() time.Duration {
	return time.Duration(cfg.RetryMaxMs) * time.Millisecond
}

func (cfg *Config) ThrottleMargin() time.Duration {
	return time.Duration(cfg.ThrottleMarginMs) * time.Millisecond
}
