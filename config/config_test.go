package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "local", cfg.Embedding.Backend)
	assert.Equal(t, ai.DefaultLocalModel, cfg.Embedding.Model)
	assert.True(t, cfg.Enrichment.Inline)
	assert.True(t, cfg.Enrichment.Backfill)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("DOCFLOW_TEST_KEY", "sk-test")
	path := writeConfig(t, `
storage:
  path: /var/lib/docflow
blob:
  dir: /srv/uploads
embedding:
  backend: openai
  host: https://api.example.com
  model: text-embedding-3-small
  api_key: ${DOCFLOW_TEST_KEY}
  dimensions: 512
  timeout: 10s
ingestion:
  batch_size: 4
  event_retry_limit: 2
  chunk_size: 200
  chunk_overlap: 20
  splitter: recursive
enrichment:
  backfill: false
  batch_size: 64
  requests_per_second: 2.5
  burst: 2
  stale_after: 2m
logging:
  level: ${DOCFLOW_TEST_LEVEL:-debug}
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/docflow", cfg.Storage.Path)
	assert.Equal(t, "/srv/uploads", cfg.Blob.Dir)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 4, cfg.Ingestion.BatchSize)
	assert.Equal(t, ingestion.DefaultPollInterval, cfg.Ingestion.PollInterval)
	assert.True(t, cfg.Enrichment.Inline)
	assert.False(t, cfg.Enrichment.Backfill)
	assert.Equal(t, 2*time.Minute, cfg.Enrichment.StaleAfter)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)

	aiCfg := cfg.AI()
	assert.Equal(t, ai.BackendOpenAI, aiCfg.Backend)
	assert.Equal(t, "text-embedding-3-small", aiCfg.EmbeddingModel)
	assert.Equal(t, "https://api.example.com/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, 512, aiCfg.Dimensions)

	enrichCfg := cfg.Enrich()
	assert.Equal(t, 64, enrichCfg.BatchSize)
	assert.Equal(t, 2.5, enrichCfg.RequestsPerSecond)
	assert.Equal(t, 2, enrichCfg.Burst)

	opts, err := cfg.ParserOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage: [not, a, map]"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeConfig(t, "embedding:\n  backend: openai\n"))
	assert.ErrorContains(t, err, "EmbeddingModel is required")

	_, err = Load(writeConfig(t, "embedding:\n  backend: grpc\n"))
	assert.ErrorIs(t, err, ai.ErrUnknownBackend)

	_, err = Load(writeConfig(t, "ingestion:\n  splitter: sentences\n"))
	assert.ErrorIs(t, err, ingestion.ErrUnknownSplitter)

	_, err = Load(writeConfig(t, "ingestion:\n  chunk_size: 50\n  chunk_overlap: 50\n"))
	assert.ErrorContains(t, err, "chunk_overlap")

	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "invalid log level")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCFLOW_SET", "value")

	got := expandEnvVars([]byte("a: ${DOCFLOW_SET}\nb: ${DOCFLOW_UNSET_VAR:-fallback}\nc: ${DOCFLOW_UNSET_VAR}"))
	assert.Equal(t, "a: value\nb: fallback\nc: ", string(got))
}
