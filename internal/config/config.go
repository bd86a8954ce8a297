package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the note core service.
// Environment variables are parsed from the NOTECORE_ prefix,
// e.g. NOTECORE_HTTP_PORT, NOTECORE_DB_DRIVER.
type Config struct {
	// DBDriver selects the persistence adapter: sqlite or postgres.
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/notecore.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Embedding configuration. Provider "none" disables semantic
	// scoring entirely; queries then run lexical-only.
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"mxbai-embed-large"`

	// Retrieval bounds
	SearchCandidateLimit int `envconfig:"SEARCH_CANDIDATE_LIMIT" default:"400"`
	SyncBatchMaxSize     int `envconfig:"SYNC_BATCH_MAX_SIZE" default:"500"`

	// Merge worker cadence
	MergeBatchSize       int `envconfig:"MERGE_BATCH_SIZE" default:"50"`
	MergeIntervalSeconds int `envconfig:"MERGE_INTERVAL_SECONDS" default:"5"`
}

// ResolveDefaults validates driver selection and bounds.
func (c *Config) ResolveDefaults() error {
	allowedDB := map[string]bool{"sqlite": true, "postgres": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_DSN")
	}
	allowedEmbed := map[string]bool{"ollama": true, "none": true}
	if !allowedEmbed[c.EmbedProvider] {
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}
	if c.SearchCandidateLimit <= 0 {
		c.SearchCandidateLimit = 400
	}
	if c.SyncBatchMaxSize <= 0 {
		c.SyncBatchMaxSize = 500
	}
	if c.MergeBatchSize <= 0 {
		c.MergeBatchSize = 50
	}
	if c.MergeIntervalSeconds <= 0 {
		c.MergeIntervalSeconds = 5
	}
	return nil
}

// New creates a Config by parsing NOTECORE_-prefixed environment
// variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("NOTECORE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Int("search_candidate_limit", cfg.SearchCandidateLimit).
		Int("sync_batch_max_size", cfg.SyncBatchMaxSize).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config suitable for unit tests: in-memory
// sqlite and no embedding provider.
func NewForTesting() *Config {
	cfg := &Config{
		DBDriver:             "sqlite",
		SQLitePath:           "file::memory:",
		HTTPPort:             8080,
		EmbedProvider:        "none",
		EmbedModel:           "",
		SearchCandidateLimit: 400,
		SyncBatchMaxSize:     500,
		MergeBatchSize:       50,
		MergeIntervalSeconds: 5,
	}
	return cfg
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
