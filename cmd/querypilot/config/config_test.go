package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfig() *Config {
	return &Config{
		Backends: []BackendConfig{{ID: "duckdb-main", Kind: "duckdb"}},
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := minimalConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "duckdb-main", cfg.DefaultBackend)
	assert.Equal(t, 8, cfg.Backends[0].Pool.MaxOpenConnections)
	assert.Equal(t, 2, cfg.Backends[0].Pool.MaxIdleConnections)
	assert.Equal(t, 5*time.Second, cfg.Backends[0].Pool.AcquireTimeout)

	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 0.25, cfg.Pipeline.ConfidenceFloor)
	assert.Equal(t, 0.7, cfg.Pipeline.PredicateDropThreshold)
	assert.Equal(t, 2, cfg.Pipeline.FuzzyMaxDistance)
	assert.Equal(t, 4, cfg.Pipeline.CorrectionFuzzyDistance)
	assert.Equal(t, int64(1000), cfg.Pipeline.MaxRows)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RequestTimeout)

	assert.Equal(t, "anonymous", cfg.Access.AnonymousRole)
	assert.Equal(t, []string{"*"}, cfg.Access.Roles["anonymous"])
}

func TestValidate_CorrectionDistanceFollowsPlannerBound(t *testing.T) {
	cfg := minimalConfig()
	cfg.Pipeline.FuzzyMaxDistance = 3
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Pipeline.CorrectionFuzzyDistance)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no backends",
			mutate:  func(c *Config) { c.Backends = nil },
			wantErr: "at least one backend",
		},
		{
			name:    "missing backend id",
			mutate:  func(c *Config) { c.Backends[0].ID = "" },
			wantErr: "id is required",
		},
		{
			name: "duplicate backend id",
			mutate: func(c *Config) {
				c.Backends = append(c.Backends, BackendConfig{ID: "duckdb-main", Kind: "sqlite"})
			},
			wantErr: "duplicate id",
		},
		{
			name:    "unsupported kind",
			mutate:  func(c *Config) { c.Backends[0].Kind = "oracle" },
			wantErr: "unsupported kind",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Backends[0].Kind = "postgres"
				c.Backends[0].DSN = ""
			},
			wantErr: "dsn is required",
		},
		{
			name:    "unknown default backend",
			mutate:  func(c *Config) { c.DefaultBackend = "missing" },
			wantErr: "not configured",
		},
		{
			name: "anonymous role without policy",
			mutate: func(c *Config) {
				c.Access.AnonymousRole = "guest"
				c.Access.Roles = map[string][]string{"analyst": {"*"}}
			},
			wantErr: "has no policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_MetricsAddressDefault(t *testing.T) {
	cfg := minimalConfig()
	cfg.Metrics.Enabled = true
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9090", cfg.Metrics.Address)

	cfg = minimalConfig()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Metrics.Address, "no address when metrics disabled")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "duckdb", cfg.Backends[0].Kind)
	assert.Equal(t, "duckdb", cfg.DefaultBackend)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
}
