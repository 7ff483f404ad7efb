// Package config loads the application configuration from YAML or TOML
// files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/poiesic/itemvec/ai"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/source"
	"github.com/poiesic/itemvec/storage"
	"gopkg.in/yaml.v3"
)

// Index backends.
const (
	BackendBadger   = "badger"
	BackendMemory   = "memory"
	BackendPgvector = "pgvector"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Environment variables that override file values.
const (
	EnvAPIKey   = "ITEMVEC_API_KEY"
	EnvPgDSN    = "ITEMVEC_PG_DSN"
	EnvMongoURI = "ITEMVEC_MONGO_URI"
)

type Config struct {
	AI        AIConfig        `yaml:"ai" toml:"ai"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
	Ingestion IngestionConfig `yaml:"ingestion" toml:"ingestion"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Mongo     MongoConfig     `yaml:"mongo" toml:"mongo"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

type AIConfig struct {
	Provider   string        `yaml:"provider" toml:"provider"`
	Host       string        `yaml:"host" toml:"host"`
	Model      string        `yaml:"model" toml:"model"`
	APIKey     string        `yaml:"api_key" toml:"api_key"`
	Dimensions int           `yaml:"dimensions" toml:"dimensions"`
	BatchSize  int           `yaml:"batch_size" toml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
}

type IndexConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
	DSN     string `yaml:"dsn" toml:"dsn"`
	Name    string `yaml:"name" toml:"name"`
	Metric  string `yaml:"metric" toml:"metric"`
}

type IngestionConfig struct {
	ChunkSize      int           `yaml:"chunk_size" toml:"chunk_size"`
	EmbedBatchSize int           `yaml:"embed_batch_size" toml:"embed_batch_size"`
	PoolSize       int           `yaml:"pool_size" toml:"pool_size"`
	MaxAttempts    int           `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" toml:"max_delay"`
	Timeout        time.Duration `yaml:"timeout" toml:"timeout"`

	// ContentIDs derives an identity from item content for records without
	// id or _id instead of failing them.
	ContentIDs bool `yaml:"content_ids" toml:"content_ids"`
}

type SearchConfig struct {
	TopK int `yaml:"top_k" toml:"top_k"`

	// Threshold is an ISO-8601 date or date-time; items created earlier are
	// never returned.
	Threshold        string `yaml:"threshold" toml:"threshold"`
	ServerSideFilter bool   `yaml:"server_side_filter" toml:"server_side_filter"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type MongoConfig struct {
	URI        string `yaml:"uri" toml:"uri"`
	Database   string `yaml:"database" toml:"database"`
	Collection string `yaml:"collection" toml:"collection"`
	Filter     string `yaml:"filter" toml:"filter"`
	Limit      int64  `yaml:"limit" toml:"limit"`
}

type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	policy := retry.DefaultPolicy()
	return &Config{
		AI: AIConfig{
			Provider:  ProviderOpenAI,
			Host:      aiDefaults.EmbeddingHost,
			Model:     aiDefaults.EmbeddingModel,
			BatchSize: aiDefaults.BatchSize,
			Timeout:   aiDefaults.Timeout,
		},
		Index: IndexConfig{
			Backend: BackendBadger,
			Path:    "./itemvec_db",
			Name:    "items",
			Metric:  string(storage.MetricCosine),
		},
		Ingestion: IngestionConfig{
			ChunkSize:      500,
			EmbedBatchSize: 64,
			MaxAttempts:    policy.MaxAttempts,
			BaseDelay:      policy.BaseDelay,
			MaxDelay:       policy.MaxDelay,
			Timeout:        policy.Timeout,
		},
		Search: SearchConfig{
			TopK:             10,
			Threshold:        "2025-01-01T00:00:00Z",
			ServerSideFilter: true,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads path over the defaults. The format is chosen by extension:
// .yaml/.yml or .toml. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing %s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides secrets and connection strings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv(EnvPgDSN); v != "" {
		c.Index.DSN = v
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		c.Mongo.URI = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.AI.Provider {
	case ProviderOpenAI:
		if err := c.AI.Options().Validate(); err != nil {
			errs = append(errs, err)
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider))
	}

	switch c.Index.Backend {
	case BackendBadger:
		if c.Index.Path == "" {
			errs = append(errs, errors.New("index.path is required for the badger backend"))
		}
	case BackendMemory:
	case BackendPgvector:
		if c.Index.DSN == "" {
			errs = append(errs, errors.New("index.dsn is required for the pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("index.backend: unknown backend %q", c.Index.Backend))
	}
	if _, err := c.Index.Spec(1); err != nil {
		errs = append(errs, fmt.Errorf("index: %w", err))
	}

	if c.Ingestion.ChunkSize < 1 {
		errs = append(errs, errors.New("ingestion.chunk_size must be greater than 0"))
	}
	if c.Ingestion.EmbedBatchSize < 1 {
		errs = append(errs, errors.New("ingestion.embed_batch_size must be greater than 0"))
	}
	if c.Ingestion.MaxAttempts < 1 {
		errs = append(errs, errors.New("ingestion.max_attempts must be greater than 0"))
	}
	if c.Ingestion.PoolSize < 0 {
		errs = append(errs, errors.New("ingestion.pool_size cannot be negative"))
	}

	if c.Search.TopK < 1 {
		errs = append(errs, errors.New("search.top_k must be greater than 0"))
	}
	if _, err := c.Search.ThresholdTime(); err != nil {
		errs = append(errs, err)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Options converts the AI section into an ai.Config.
func (a AIConfig) Options() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(a.Host),
		ai.WithEmbeddingModel(a.Model),
		ai.WithAPIKey(a.APIKey),
		ai.WithDimensions(a.Dimensions),
		ai.WithBatchSize(a.BatchSize),
		ai.WithTimeout(a.Timeout),
	)
}

// Spec returns the index spec for vectors of the given dimension.
func (i IndexConfig) Spec(dimension int) (storage.IndexSpec, error) {
	metric, err := storage.ParseMetric(i.Metric)
	if err != nil {
		return storage.IndexSpec{}, err
	}
	spec := storage.IndexSpec{Name: i.Name, Dimension: dimension, Metric: metric}
	return spec, spec.Validate()
}

// RetryPolicy returns the retry policy for embedding batches and upsert
// chunks.
func (i IngestionConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: i.MaxAttempts,
		BaseDelay:   i.BaseDelay,
		MaxDelay:    i.MaxDelay,
		Timeout:     i.Timeout,
	}
}

// ThresholdTime parses the recency threshold.
func (s SearchConfig) ThresholdTime() (time.Time, error) {
	t, err := core.ParseISODate(strings.TrimSpace(s.Threshold))
	if err != nil {
		return time.Time{}, fmt.Errorf("search.threshold: %w", err)
	}
	return t, nil
}

// Source returns the MongoDB source settings.
func (m MongoConfig) Source() source.MongoConfig {
	return source.MongoConfig{
		URI:        m.URI,
		Database:   m.Database,
		Collection: m.Collection,
		Filter:     m.Filter,
		Limit:      m.Limit,
	}
}
