package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDefra    = "defra"
	DriverMemory   = "memory"
)

// Config holds promptctx configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Prompts PromptsConfig `mapstructure:"prompts" yaml:"prompts"`
	Assets  AssetsConfig  `mapstructure:"assets" yaml:"assets"`
	Compose ComposeConfig `mapstructure:"compose" yaml:"compose"`
	Query   QueryConfig   `mapstructure:"query" yaml:"query"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite", "postgres", "defra", "memory"
	// DSN is the database path or connection string (supports ${ENV_VAR} syntax).
	// Empty for sqlite means {home}/promptctx.db.
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	DefraURL string `mapstructure:"defra_url" yaml:"defra_url"`
	// AllowRawQueries enables direct execution of embedded queries (sql drivers only).
	AllowRawQueries bool `mapstructure:"allow_raw_queries" yaml:"allow_raw_queries"`
	ConnectRetries  uint `mapstructure:"connect_retries" yaml:"connect_retries"`
}

// PromptsConfig configures local prompt resolution.
type PromptsConfig struct {
	// SearchDirs are searched in order for prompts missing from the store.
	SearchDirs []string `mapstructure:"search_dirs" yaml:"search_dirs"`
}

// AssetsConfig configures asset reads.
type AssetsConfig struct {
	Root     string `mapstructure:"root" yaml:"root"`           // Base for relative asset paths
	MaxBytes int64  `mapstructure:"max_bytes" yaml:"max_bytes"` // Larger assets are not inlined
}

// ComposeConfig configures the composition pipeline.
type ComposeConfig struct {
	StepTimeout          string `mapstructure:"step_timeout" yaml:"step_timeout"` // Go duration, e.g. "30s"
	MaxConcurrentReads   int    `mapstructure:"max_concurrent_reads" yaml:"max_concurrent_reads"`
	IncludeRelationships bool   `mapstructure:"include_relationships" yaml:"include_relationships"`
	IncludeQueries       bool   `mapstructure:"include_queries" yaml:"include_queries"`
	IncludeTemplates     bool   `mapstructure:"include_templates" yaml:"include_templates"`
}

// Timeout parses StepTimeout. Empty means zero (the pipeline default).
func (c ComposeConfig) Timeout() (time.Duration, error) {
	if c.StepTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.StepTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid compose.step_timeout %q: %w", c.StepTimeout, err)
	}
	return d, nil
}

// QueryConfig configures the embedded query executor.
type QueryConfig struct {
	// FallbackCollections are readable by the fallback path in addition to
	// the engine's own collections.
	FallbackCollections []string `mapstructure:"fallback_collections" yaml:"fallback_collections"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // text or json
	File       string `mapstructure:"file" yaml:"file"`     // Optional rotating log file
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:          DriverSQLite,
			DefraURL:        "http://localhost:9181",
			AllowRawQueries: true,
			ConnectRetries:  3,
		},
		Prompts: PromptsConfig{
			SearchDirs: []string{".", "prompts"},
		},
		Assets: AssetsConfig{
			MaxBytes: 1 << 20,
		},
		Compose: ComposeConfig{
			StepTimeout:          "30s",
			MaxConcurrentReads:   4,
			IncludeRelationships: true,
			IncludeQueries:       true,
			IncludeTemplates:     true,
		},
		Query: QueryConfig{
			FallbackCollections: []string{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverDefra, DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for postgres")
	}
	if _, err := c.Compose.Timeout(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// ResolvedDSN returns Store.DSN with ${ENV_VAR} references expanded.
func (c *Config) ResolvedDSN() string {
	return ResolveEnvVars(c.Store.DSN)
}
