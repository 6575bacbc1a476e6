// Package config loads lattice settings from, in increasing
// precedence, built-in defaults, an optional YAML file, and
// environment variables with the LATTICE_ prefix. A .env file in the
// working directory is read into the environment when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the lattice knowledge base.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Inference InferenceConfig `yaml:"inference"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"` // default 127.0.0.1
	Port int    `yaml:"port"` // default 8585

	// RateLimit bounds API requests per second; Burst is the bucket
	// size. Defaults 20 and 40.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// IndexConfig contains embedding index settings.
type IndexConfig struct {
	MaxFeatures int     `yaml:"max_features"` // vocabulary bound, default 1000
	TopK        int     `yaml:"top_k"`        // default search depth, default 5
	Threshold   float64 `yaml:"threshold"`    // minimum similarity, default 0.1
}

// SnapshotConfig contains persistence paths.
type SnapshotConfig struct {
	GraphPath      string `yaml:"graph_path"`      // default ./data/graph.json
	EmbeddingsPath string `yaml:"embeddings_path"` // default ./data/embeddings.db
}

// EnrichConfig contains enrichment service settings. An empty URL
// disables enrichment.
type EnrichConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`             // default 10s
	RequestsPerSecond float64       `yaml:"requests_per_second"` // default 2
	Burst             int           `yaml:"burst"`               // default 4
}

// PostgresConfig contains the optional external embedding store. An
// empty DSN disables it.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error; default info
}

// InferenceConfig contains relationship inference settings.
type InferenceConfig struct {
	ProgressEvery int `yaml:"progress_every"` // pairs per progress event, default 500
}

// LoadDotEnv reads a .env file into the process environment when one
// exists. Missing files are not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load builds the configuration. When path is non-empty the YAML file
// at that location is applied over the defaults before environment
// variables are read.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Server.Port)
	}
	if cfg.Index.MaxFeatures <= 0 {
		return nil, fmt.Errorf("config: max_features must be positive, got %d", cfg.Index.MaxFeatures)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8585,
			RateLimit: 20,
			Burst:     40,
		},
		Index: IndexConfig{
			MaxFeatures: 1000,
			TopK:        5,
			Threshold:   0.1,
		},
		Snapshot: SnapshotConfig{
			GraphPath:      "./data/graph.json",
			EmbeddingsPath: "./data/embeddings.db",
		},
		Enrich: EnrichConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Inference: InferenceConfig{
			ProgressEvery: 500,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("LATTICE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("LATTICE_PORT", cfg.Server.Port)
	cfg.Server.RateLimit = getEnvFloat("LATTICE_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.Burst = getEnvInt("LATTICE_BURST", cfg.Server.Burst)

	cfg.Index.MaxFeatures = getEnvInt("LATTICE_MAX_FEATURES", cfg.Index.MaxFeatures)
	cfg.Index.TopK = getEnvInt("LATTICE_TOP_K", cfg.Index.TopK)
	cfg.Index.Threshold = getEnvFloat("LATTICE_THRESHOLD", cfg.Index.Threshold)

	cfg.Snapshot.GraphPath = getEnv("LATTICE_GRAPH_PATH", cfg.Snapshot.GraphPath)
	cfg.Snapshot.EmbeddingsPath = getEnv("LATTICE_EMBEDDINGS_PATH", cfg.Snapshot.EmbeddingsPath)

	cfg.Enrich.URL = getEnv("LATTICE_ENRICH_URL", cfg.Enrich.URL)
	cfg.Enrich.Timeout = getEnvDuration("LATTICE_ENRICH_TIMEOUT", cfg.Enrich.Timeout)
	cfg.Enrich.RequestsPerSecond = getEnvFloat("LATTICE_ENRICH_RPS", cfg.Enrich.RequestsPerSecond)
	cfg.Enrich.Burst = getEnvInt("LATTICE_ENRICH_BURST", cfg.Enrich.Burst)

	cfg.Postgres.DSN = getEnv("LATTICE_POSTGRES_DSN", cfg.Postgres.DSN)

	cfg.Logging.Level = getEnv("LATTICE_LOG_LEVEL", cfg.Logging.Level)

	cfg.Inference.ProgressEvery = getEnvInt("LATTICE_PROGRESS_EVERY", cfg.Inference.ProgressEvery)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
