package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, EngineConfig{}, cfg.Engine)
	assert.NotEqual(t, HistoryConfig{}, cfg.History)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, ToolsConfig{}, cfg.Tools)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
}

// --- Individual Default*Config functions ---

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, 25, cfg.StepBudget)
	assert.Equal(t, 4, cfg.BatchConcurrency)
	assert.Zero(t, cfg.RunTimeout)
}

func TestDefaultHistoryConfig(t *testing.T) {
	cfg := DefaultHistoryConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "stategraph:history:", cfg.KeyPrefix)
	assert.Equal(t, 7*24*time.Hour, cfg.TTL)
	assert.Equal(t, 100, cfg.ListLimit)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "stategraph.db", cfg.DSN())
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "rule", cfg.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestDefaultToolsConfig(t *testing.T) {
	cfg := DefaultToolsConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Zero(t, cfg.RateLimitRPS)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "stategraph", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 30*time.Second, cfg.MetricInterval)
}

func TestDefaultMetricsConfig(t *testing.T) {
	cfg := DefaultMetricsConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "stategraph", cfg.Namespace)
}
