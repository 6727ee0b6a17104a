package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AQARLY_POSTGRES_URL", "postgres://localhost:5432/aqarly?sslmode=disable")
	t.Setenv("AQARLY_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.InvoiceGenerationSchedule)
	assert.Equal(t, "15 3 * * *", cfg.Scheduler.ContractExpirySchedule)
	assert.Equal(t, 20, cfg.Storage.PostgresMaxConns)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AQARLY_POSTGRES_URL", "postgres://db:5432/aqarly")
	t.Setenv("AQARLY_POSTGRES_REPLICA_URLS", "postgres://r1:5432/aqarly, postgres://r2:5432/aqarly")
	t.Setenv("AQARLY_POSTGRES_MAX_CONNS", "50")
	t.Setenv("AQARLY_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("AQARLY_PORT", "8888")
	t.Setenv("AQARLY_LOG_LEVEL", "debug")
	t.Setenv("AQARLY_SCHEDULER_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Storage.PostgresMaxConns)
	assert.Equal(t, []string{"postgres://r1:5432/aqarly", "postgres://r2:5432/aqarly"}, cfg.Storage.PostgresReplicaURLs)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Storage.PostgresURL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "missing redis URL with cache enabled",
			mutate:  func(c *Config) { c.Storage.RedisURL = "" },
			wantErr: "redis URL is required",
		},
		{
			name: "redis optional when cache disabled",
			mutate: func(c *Config) {
				c.Storage.RedisURL = ""
				c.Storage.CacheEnabled = false
			},
		},
		{
			name: "port collision",
			mutate: func(c *Config) {
				c.Server.Port = "9090"
				c.Server.HealthPort = "9090"
			},
			wantErr: "must be different",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			}
			cfg.Storage.PostgresURL = "postgres://localhost/aqarly"
			cfg.Storage.RedisURL = "redis://localhost:6379"
			cfg.Storage.CacheEnabled = true
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("bogus"))
}
