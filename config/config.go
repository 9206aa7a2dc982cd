// Package config loads docflow's YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/enrich"
	"github.com/poiesic/docflow/ingestion"
	"gopkg.in/yaml.v3"
)

// Config holds the docflow configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Blob       BlobConfig       `yaml:"blob"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StorageConfig locates the badger database.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// BlobConfig locates uploaded items.
type BlobConfig struct {
	Dir string `yaml:"dir"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Backend    string        `yaml:"backend"` // local, openai, langchain (default: local)
	Host       string        `yaml:"host"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IngestionConfig holds parser settings.
type IngestionConfig struct {
	PoolSize        int           `yaml:"pool_size"`
	BatchSize       int           `yaml:"batch_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	FetchRetries    int           `yaml:"fetch_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	EventRetryLimit int           `yaml:"event_retry_limit"` // 0 = manual reissue only
	Splitter        string        `yaml:"splitter"`          // window, recursive
	ChunkSize       int           `yaml:"chunk_size"`
	ChunkOverlap    int           `yaml:"chunk_overlap"`
}

// EnrichmentConfig holds embedding worker settings.
type EnrichmentConfig struct {
	Inline            bool          `yaml:"inline"`
	Backfill          bool          `yaml:"backfill"`
	BatchSize         int           `yaml:"batch_size"`
	MaxAttempts       int           `yaml:"max_attempts"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	Interval          time.Duration `yaml:"interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	Burst             int           `yaml:"burst"`
	EmbedRetries      int           `yaml:"embed_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RecentWindow      time.Duration `yaml:"recent_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // serves /metrics and /health; empty disables both
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{
		Enrichment: EnrichmentConfig{Inline: true, Backfill: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. An empty path returns Default.
// ${VAR} and ${VAR:-default} references are replaced from the environment.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	data = expandEnvVars(data)

	cfg := Config{
		Enrichment: EnrichmentConfig{Inline: true, Backfill: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Storage.Path == "" && !c.Storage.InMemory {
		c.Storage.Path = "./docflow-data"
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = "./uploads"
	}

	emb := ai.DefaultConfig()
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = string(emb.Backend)
	}
	if c.Embedding.Host == "" {
		c.Embedding.Host = emb.EmbeddingHost
	}
	// The default model and size only make sense for the local backend.
	if c.Embedding.Model == "" && c.Embedding.Backend == string(emb.Backend) {
		c.Embedding.Model = emb.EmbeddingModel
	}
	if c.Embedding.Dimensions == 0 && c.Embedding.Backend == string(emb.Backend) {
		c.Embedding.Dimensions = emb.Dimensions
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = emb.APIKey
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = emb.BatchSize
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = emb.Timeout
	}

	if c.Ingestion.BatchSize <= 0 {
		c.Ingestion.BatchSize = ingestion.DefaultBatchSize
	}
	if c.Ingestion.PollInterval <= 0 {
		c.Ingestion.PollInterval = ingestion.DefaultPollInterval
	}
	if c.Ingestion.StaleAfter <= 0 {
		c.Ingestion.StaleAfter = ingestion.DefaultStaleAfter
	}
	if c.Ingestion.FetchTimeout <= 0 {
		c.Ingestion.FetchTimeout = ingestion.DefaultFetchTimeout
	}
	if c.Ingestion.FetchRetries <= 0 {
		c.Ingestion.FetchRetries = ingestion.DefaultFetchRetries
	}
	if c.Ingestion.RetryDelay <= 0 {
		c.Ingestion.RetryDelay = ingestion.DefaultRetryDelay
	}
	if c.Ingestion.Splitter == "" {
		c.Ingestion.Splitter = ingestion.SplitterWindow
	}
	if c.Ingestion.ChunkSize <= 0 {
		c.Ingestion.ChunkSize = ingestion.DefaultChunkSize
	}
	if c.Ingestion.ChunkOverlap <= 0 {
		c.Ingestion.ChunkOverlap = ingestion.DefaultChunkOverlap
	}

	def := enrich.DefaultConfig()
	if c.Enrichment.BatchSize <= 0 {
		c.Enrichment.BatchSize = def.BatchSize
	}
	if c.Enrichment.MaxAttempts <= 0 {
		c.Enrichment.MaxAttempts = def.MaxAttempts
	}
	if c.Enrichment.StaleAfter <= 0 {
		c.Enrichment.StaleAfter = def.StaleAfter
	}
	if c.Enrichment.Interval <= 0 {
		c.Enrichment.Interval = def.Interval
	}
	if c.Enrichment.RequestTimeout <= 0 {
		c.Enrichment.RequestTimeout = def.RequestTimeout
	}
	if c.Enrichment.Burst <= 0 {
		c.Enrichment.Burst = def.Burst
	}
	if c.Enrichment.EmbedRetries <= 0 {
		c.Enrichment.EmbedRetries = def.EmbedRetries
	}
	if c.Enrichment.RetryDelay <= 0 {
		c.Enrichment.RetryDelay = def.RetryDelay
	}
	if c.Enrichment.RecentWindow <= 0 {
		c.Enrichment.RecentWindow = def.RecentWindow
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if err := c.AI().Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if _, err := ingestion.NewSplitter(c.Ingestion.Splitter, c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap); err != nil {
		return fmt.Errorf("ingestion.splitter: %w", err)
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap must be smaller than chunk_size, got %d >= %d",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	if c.Ingestion.EventRetryLimit < 0 {
		return fmt.Errorf("ingestion.event_retry_limit cannot be negative, got %d", c.Ingestion.EventRetryLimit)
	}
	if err := c.Enrich().Validate(); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// AI converts the embedding section into an ai.Config.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithBackend(ai.Backend(c.Embedding.Backend)),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithBatchSize(c.Embedding.BatchSize),
		ai.WithTimeout(c.Embedding.Timeout),
	)
}

// Enrich converts the enrichment section into an enrich.Config.
func (c *Config) Enrich() *enrich.Config {
	e := c.Enrichment
	return enrich.NewConfig(
		enrich.WithBatchSize(e.BatchSize),
		enrich.WithMaxAttempts(e.MaxAttempts),
		enrich.WithStaleAfter(e.StaleAfter),
		enrich.WithInterval(e.Interval),
		enrich.WithRequestTimeout(e.RequestTimeout),
		enrich.WithRateLimit(e.RequestsPerSecond, e.Burst),
		enrich.WithEmbedRetries(e.EmbedRetries, e.RetryDelay),
		enrich.WithRecentWindow(e.RecentWindow),
	)
}

// ParserOptions converts the ingestion section into parser options.
func (c *Config) ParserOptions() ([]ingestion.Option, error) {
	in := c.Ingestion
	splitter, err := ingestion.NewSplitter(in.Splitter, in.ChunkSize, in.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	opts := []ingestion.Option{
		ingestion.WithBatchSize(in.BatchSize),
		ingestion.WithPollInterval(in.PollInterval),
		ingestion.WithStaleAfter(in.StaleAfter),
		ingestion.WithFetchTimeout(in.FetchTimeout),
		ingestion.WithFetchRetries(in.FetchRetries),
		ingestion.WithRetryDelay(in.RetryDelay),
		ingestion.WithEventRetryLimit(in.EventRetryLimit),
		ingestion.WithSplitter(splitter),
	}
	if in.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(in.PoolSize))
	}
	return opts, nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, fallback, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = fallback
		}
		return []byte(val)
	})
}
