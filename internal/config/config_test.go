package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-summaryview/internal/auth"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"SUMMARY_API_URL": "https://fhir.example.org/Patient",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "substring", cfg.ReferenceMatch)
	assert.Equal(t, auth.GateDemographics, cfg.Gate())
	assert.Equal(t, "/auth/login", cfg.AuthEndpoints().LoginURL())
	assert.Equal(t, time.Duration(0), cfg.FetchTimeout)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"SUMMARY_API_URL":       "https://fhir.example.org/Patient",
		"PORT":                  "9090",
		"REFERENCE_MATCH":       "EXACT",
		"AUTH_GATE":             "all",
		"KAFKA_BROKERS":         "rp-0:9092, rp-1:9092",
		"REDIS_ADDR":            "localhost:6379",
		"FETCH_TIMEOUT":         "15",
		"RATE_LIMIT_PER_MINUTE": "0",
		"LOG_LEVEL":             "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, auth.GateAll, cfg.Gate())
	assert.Equal(t, []string{"rp-0:9092", "rp-1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 0, cfg.RateLimitPerMinute)
	assert.False(t, cfg.Matcher().Match("https://x/Condition/11", "1"))
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing summary url", map[string]string{}},
		{"bad summary url", map[string]string{"SUMMARY_API_URL": "not a url"}},
		{"bad match", map[string]string{"SUMMARY_API_URL": "http://x", "REFERENCE_MATCH": "fuzzy"}},
		{"bad gate", map[string]string{"SUMMARY_API_URL": "http://x", "AUTH_GATE": "none"}},
		{"bad timeout", map[string]string{"SUMMARY_API_URL": "http://x", "FETCH_TIMEOUT": "soon"}},
		{"negative rate", map[string]string{"SUMMARY_API_URL": "http://x", "RATE_LIMIT_PER_MINUTE": "-1"}},
		{"bad log level", map[string]string{"SUMMARY_API_URL": "http://x", "LOG_LEVEL": "loud"}},
		{"bad broker", map[string]string{"SUMMARY_API_URL": "http://x", "KAFKA_BROKERS": "nohost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn", Environment: "production"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
}
