// Package config loads the summary viewer configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/auth"
	"github.com/drfirst/go-summaryview/internal/summary"
)

// Config holds application configuration
type Config struct {
	// SummaryAPIURL is the base of {base}/{id}/summary.
	SummaryAPIURL string `validate:"required,url"`
	Port          string `validate:"required,numeric"`

	ReferenceMatch string `validate:"oneof=substring exact"`
	AuthGate       string `validate:"oneof=demographics all"`
	AuthPathPrefix string `validate:"required"`

	RedisAddr     string `validate:"omitempty,hostname_port"`
	RedisPassword string
	DatabaseURL   string   `validate:"omitempty,url"`
	KafkaBrokers  []string `validate:"dive,hostname_port"`
	OTLPEndpoint  string

	FetchTimeout       time.Duration `validate:"gte=0"`
	RateLimitPerMinute int           `validate:"gte=0"`
	CORSOrigins        []string
	LogLevel           string `validate:"oneof=debug info warn error"`
	Environment        string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		SummaryAPIURL:  get("SUMMARY_API_URL", ""),
		Port:           get("PORT", "8080"),
		ReferenceMatch: strings.ToLower(get("REFERENCE_MATCH", "substring")),
		AuthGate:       strings.ToLower(get("AUTH_GATE", "demographics")),
		AuthPathPrefix: get("AUTH_PATH_PREFIX", "/auth"),
		RedisAddr:      get("REDIS_ADDR", ""),
		RedisPassword:  getenv("REDIS_PASSWORD"),
		DatabaseURL:    get("DATABASE_URL", ""),
		KafkaBrokers:   splitList(get("KAFKA_BROKERS", "")),
		OTLPEndpoint:   get("OTLP_ENDPOINT", ""),
		CORSOrigins:    splitList(get("CORS_ALLOWED_ORIGINS", "")),
		LogLevel:       strings.ToLower(get("LOG_LEVEL", "info")),
		Environment:    get("ENVIRONMENT", "development"),
	}

	var err error
	if cfg.FetchTimeout, err = parseDuration(get("FETCH_TIMEOUT", "0s")); err != nil {
		return nil, fmt.Errorf("FETCH_TIMEOUT: %w", err)
	}
	if cfg.RateLimitPerMinute, err = strconv.Atoi(get("RATE_LIMIT_PER_MINUTE", "60")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Matcher returns the configured reference matcher.
func (c *Config) Matcher() summary.Matcher {
	return summary.ParseMatcher(c.ReferenceMatch)
}

// Gate returns the configured auth gate policy.
func (c *Config) Gate() auth.GatePolicy {
	g, _ := auth.ParseGatePolicy(c.AuthGate)
	return g
}

// AuthEndpoints returns the external auth service routes.
func (c *Config) AuthEndpoints() auth.Endpoints {
	return auth.Endpoints{Prefix: c.AuthPathPrefix}
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	if c.Environment == "development" {
		zc.Development = true
	}
	return zc.Build()
}
