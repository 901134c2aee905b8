// Package config provides configuration structures for the query pipeline CLI.
package config

import (
	"fmt"
	"time"
)

// Config represents the full pipeline configuration.
type Config struct {
	LogLevel       string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	DefaultBackend string `yaml:"default_backend" json:"default_backend" mapstructure:"default_backend"`

	// Backends lists every connectable database.
	Backends []BackendConfig `yaml:"backends" json:"backends" mapstructure:"backends"`

	// Pipeline tunes the correction loop and execution limits.
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline" mapstructure:"pipeline"`

	// Intent selects and parameterizes the understanding provider.
	Intent IntentConfig `yaml:"intent" json:"intent" mapstructure:"intent"`

	// Access holds role policies and token verification settings.
	Access AccessConfig `yaml:"access" json:"access" mapstructure:"access"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// BackendConfig represents one database backend.
type BackendConfig struct {
	ID   string     `yaml:"id" json:"id" mapstructure:"id"`
	Kind string     `yaml:"kind" json:"kind" mapstructure:"kind"` // duckdb, sqlite, postgres
	DSN  string     `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	Pool PoolConfig `yaml:"pool" json:"pool" mapstructure:"pool"`
}

// PoolConfig represents per-backend connection pool configuration.
type PoolConfig struct {
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections" mapstructure:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections" mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	AcquireTimeout     time.Duration `yaml:"acquire_timeout" json:"acquire_timeout" mapstructure:"acquire_timeout"`
	HealthCheckPeriod  time.Duration `yaml:"health_check_period" json:"health_check_period" mapstructure:"health_check_period"`
}

// PipelineConfig tunes the correction loop.
type PipelineConfig struct {
	MaxAttempts             int           `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`
	ConfidenceFloor         float64       `yaml:"confidence_floor" json:"confidence_floor" mapstructure:"confidence_floor"`
	PredicateDropThreshold  float64       `yaml:"predicate_drop_threshold" json:"predicate_drop_threshold" mapstructure:"predicate_drop_threshold"`
	FuzzyMaxDistance        int           `yaml:"fuzzy_max_distance" json:"fuzzy_max_distance" mapstructure:"fuzzy_max_distance"`
	CorrectionFuzzyDistance int           `yaml:"correction_fuzzy_distance" json:"correction_fuzzy_distance" mapstructure:"correction_fuzzy_distance"`
	MaxRows                 int64         `yaml:"max_rows" json:"max_rows" mapstructure:"max_rows"`
	CacheTTL                time.Duration `yaml:"cache_ttl" json:"cache_ttl" mapstructure:"cache_ttl"`
	RequestTimeout          time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
}

// IntentConfig selects the understanding provider.
type IntentConfig struct {
	Provider    string `yaml:"provider" json:"provider" mapstructure:"provider"` // auto, heuristic, openai
	OpenAIKey   string `yaml:"openai_key" json:"openai_key" mapstructure:"openai_key"`
	OpenAIModel string `yaml:"openai_model" json:"openai_model" mapstructure:"openai_model"`
}

// AccessConfig holds role policies and token settings.
type AccessConfig struct {
	Roles         map[string][]string `yaml:"roles" json:"roles" mapstructure:"roles"`
	AnonymousRole string              `yaml:"anonymous_role" json:"anonymous_role" mapstructure:"anonymous_role"`
	JWTSecret     string              `yaml:"jwt_secret" json:"jwt_secret" mapstructure:"jwt_secret"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address"`
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	ids := map[string]bool{}
	for i := range c.Backends {
		b := &c.Backends[i]
		if b.ID == "" {
			return fmt.Errorf("backend %d: id is required", i)
		}
		if ids[b.ID] {
			return fmt.Errorf("backend %q: duplicate id", b.ID)
		}
		ids[b.ID] = true
		switch b.Kind {
		case "duckdb", "sqlite", "postgres":
		default:
			return fmt.Errorf("backend %q: unsupported kind %q", b.ID, b.Kind)
		}
		if b.Kind == "postgres" && b.DSN == "" {
			return fmt.Errorf("backend %q: dsn is required for postgres", b.ID)
		}
		if b.Pool.MaxOpenConnections <= 0 {
			b.Pool.MaxOpenConnections = 8
		}
		if b.Pool.MaxIdleConnections <= 0 {
			b.Pool.MaxIdleConnections = 2
		}
		if b.Pool.AcquireTimeout <= 0 {
			b.Pool.AcquireTimeout = 5 * time.Second
		}
	}
	if c.DefaultBackend == "" {
		c.DefaultBackend = c.Backends[0].ID
	}
	if !ids[c.DefaultBackend] {
		return fmt.Errorf("default backend %q is not configured", c.DefaultBackend)
	}

	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.ConfidenceFloor <= 0 {
		c.Pipeline.ConfidenceFloor = 0.25
	}
	if c.Pipeline.PredicateDropThreshold <= 0 {
		c.Pipeline.PredicateDropThreshold = 0.7
	}
	if c.Pipeline.FuzzyMaxDistance <= 0 {
		c.Pipeline.FuzzyMaxDistance = 2
	}
	if c.Pipeline.CorrectionFuzzyDistance <= 0 {
		c.Pipeline.CorrectionFuzzyDistance = c.Pipeline.FuzzyMaxDistance + 2
	}
	if c.Pipeline.MaxRows <= 0 {
		c.Pipeline.MaxRows = 1000
	}
	if c.Pipeline.CacheTTL <= 0 {
		c.Pipeline.CacheTTL = 5 * time.Minute
	}
	if c.Pipeline.RequestTimeout <= 0 {
		c.Pipeline.RequestTimeout = 30 * time.Second
	}

	if c.Access.AnonymousRole == "" {
		c.Access.AnonymousRole = "anonymous"
	}
	if c.Access.Roles == nil {
		c.Access.Roles = map[string][]string{c.Access.AnonymousRole: {"*"}}
	}
	if _, ok := c.Access.Roles[c.Access.AnonymousRole]; !ok {
		return fmt.Errorf("anonymous role %q has no policy", c.Access.AnonymousRole)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	return nil
}

// Default returns a configuration with a single in-memory DuckDB backend,
// useful for local exploration without a config file.
func Default() *Config {
	cfg := &Config{
		Backends: []BackendConfig{{
			ID:   "duckdb",
			Kind: "duckdb",
			DSN:  "",
		}},
	}
	_ = cfg.Validate()
	return cfg
}
