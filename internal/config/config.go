// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package config

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// Config is the top-level configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Behavior  BehaviorConfig  `mapstructure:"behavior"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Server    ServerConfig    `mapstructure:"server"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
	DSN     string `mapstructure:"dsn"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// DiscoveryConfig tunes the fusion pipeline.
type DiscoveryConfig struct {
	DefaultTopK          int           `mapstructure:"default_top_k"`
	MaxUngatedPopulation int           `mapstructure:"max_ungated_population"`
	AllowListChunkSize   int           `mapstructure:"allow_list_chunk_size"`
	StageTimeout         time.Duration `mapstructure:"stage_timeout"`
}

// BehaviorConfig tunes the behavioral aggregation.
type BehaviorConfig struct {
	// LuxuryThreshold is the total-spent cutoff for the luxury tag. It is
	// configuration, not derived data.
	LuxuryThreshold float64 `mapstructure:"luxury_threshold"`
	TopInterests    int     `mapstructure:"top_interests"`
}

// IngestConfig points at the source exports.
type IngestConfig struct {
	CustomersCSV string `mapstructure:"customers_csv"`
	EventsCSV    string `mapstructure:"events_csv"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SetDefaults applies the default configuration values to v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("discovery.default_top_k", 10)
	v.SetDefault("discovery.max_ungated_population", 10000)
	v.SetDefault("discovery.allow_list_chunk_size", 256)
	v.SetDefault("discovery.stage_timeout", "10s")
	v.SetDefault("behavior.luxury_threshold", 800.0)
	v.SetDefault("behavior.top_interests", 2)
	v.SetDefault("ingest.customers_csv", "source_data/crm_customers.csv")
	v.SetDefault("ingest.events_csv", "source_data/clickstream_events.csv")
	v.SetDefault("server.listen", "127.0.0.1:8765")
}

// SetupEnv binds environment variable overrides (prefix CDP_).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("CDP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, cdperr.Errorf(cdperr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a populated Viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "postgres": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, postgres], got %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "postgres" && c.Storage.DSN == "" {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: storage.dsn must be set for the postgres backend"))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: storage.data_dir must not be empty"))
	}

	validProviders := map[string]bool{"local": true, "openai": true}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must be one of [local, openai], got %q", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: embedding.api_key must be set for the openai provider"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}

	if c.Discovery.DefaultTopK <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: discovery.default_top_k must be greater than 0, got %d", c.Discovery.DefaultTopK))
	}
	if c.Discovery.MaxUngatedPopulation <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: discovery.max_ungated_population must be greater than 0, got %d", c.Discovery.MaxUngatedPopulation))
	}
	if c.Discovery.AllowListChunkSize <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: discovery.allow_list_chunk_size must be greater than 0, got %d", c.Discovery.AllowListChunkSize))
	}
	if c.Discovery.StageTimeout <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: discovery.stage_timeout must be greater than 0, got %s", c.Discovery.StageTimeout))
	}

	if c.Behavior.LuxuryThreshold <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: behavior.luxury_threshold must be greater than 0, got %g", c.Behavior.LuxuryThreshold))
	}
	if c.Behavior.TopInterests <= 0 {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: behavior.top_interests must be greater than 0, got %d", c.Behavior.TopInterests))
	}

	if c.Server.Listen == "" {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: server.listen must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, cdperr.Errorf(cdperr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	}

	return errs
}
