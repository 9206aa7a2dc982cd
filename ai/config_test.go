package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, DefaultLocalModel, cfg.EmbeddingModel)
	assert.Equal(t, 256, cfg.Dimensions)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, cfg.Remote())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, BackendLocal, cfg.Backend)
		assert.Equal(t, DefaultLocalModel, cfg.EmbeddingModel)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithBackend(BackendOpenAI),
			WithEmbeddingHost("http://custom:8080/v1"),
			WithEmbeddingModel("custom-embed"),
			WithAPIKey("secret"),
			WithDimensions(768),
			WithBatchSize(8),
			WithTimeout(time.Second),
		)

		assert.Equal(t, BackendOpenAI, cfg.Backend)
		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "custom-embed", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, 768, cfg.Dimensions)
		assert.Equal(t, 8, cfg.BatchSize)
		assert.Equal(t, time.Second, cfg.Timeout)
		assert.True(t, cfg.Remote())
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "already has /v1", host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "missing /v1", host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "empty host", host: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, BackendLocal, cfg.Backend)
			assert.Equal(t, 32, cfg.BatchSize)
			assert.Equal(t, 30*time.Second, cfg.Timeout)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid remote config", func(t *testing.T) {
		cfg := &Config{
			Backend:        BackendLangchain,
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: "embeddinggemma",
		}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	t.Run("missing embedding host", func(t *testing.T) {
		cfg := &Config{Backend: BackendOpenAI, EmbeddingModel: "embeddinggemma"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingHost")
	})

	t.Run("missing embedding model", func(t *testing.T) {
		cfg := &Config{Backend: BackendOpenAI, EmbeddingHost: "http://localhost:11434/v1"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingModel")
	})

	t.Run("local needs dimensions", func(t *testing.T) {
		cfg := &Config{Backend: BackendLocal, EmbeddingModel: "m"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Dimensions")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := &Config{Backend: "quantum", EmbeddingModel: "m"}
		assert.ErrorIs(t, cfg.Validate(), ErrUnknownBackend)
	})
}

func TestConfigWithModel(t *testing.T) {
	cfg := DefaultConfig()

	other := cfg.WithModel("other")
	assert.Equal(t, "other", other.EmbeddingModel)
	assert.Equal(t, DefaultLocalModel, cfg.EmbeddingModel, "original is untouched")

	same := cfg.WithModel("")
	assert.Equal(t, DefaultLocalModel, same.EmbeddingModel)
}

func TestConfigWithTarget(t *testing.T) {
	cfg := DefaultConfig()

	wide := cfg.WithTarget("other", 1024)
	assert.Equal(t, "other", wide.EmbeddingModel)
	assert.Equal(t, 1024, wide.Dimensions)
	assert.Equal(t, 256, cfg.Dimensions, "original is untouched")

	kept := cfg.WithTarget("", 0)
	assert.Equal(t, DefaultLocalModel, kept.EmbeddingModel)
	assert.Equal(t, 256, kept.Dimensions)
}

type stubEmbedder struct{ model string }

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) (*Result, error) {
	return NewResult(s.model, len(texts)), nil
}

func (s *stubEmbedder) Model() string { return s.model }

func TestProvider_CachesPerModel(t *testing.T) {
	built := 0
	provider, err := NewProvider(DefaultConfig(), func(cfg *Config) (Embedder, error) {
		built++
		return &stubEmbedder{model: cfg.EmbeddingModel}, nil
	})
	require.NoError(t, err)
	defer provider.Close()

	first, err := provider.Embedder("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLocalModel, first.Model())

	again, err := provider.Embedder(DefaultLocalModel, 256)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, built)

	switched, err := provider.Embedder("bigger-model", 0)
	require.NoError(t, err)
	assert.Equal(t, "bigger-model", switched.Model())
	assert.Equal(t, 2, built)
}

func TestProvider_CachesPerDimensions(t *testing.T) {
	var sizes []int
	provider, err := NewProvider(DefaultConfig(), func(cfg *Config) (Embedder, error) {
		sizes = append(sizes, cfg.Dimensions)
		return &stubEmbedder{model: cfg.EmbeddingModel}, nil
	})
	require.NoError(t, err)
	defer provider.Close()

	small, err := provider.Embedder("", 0)
	require.NoError(t, err)
	wide, err := provider.Embedder("", 512)
	require.NoError(t, err)
	assert.NotSame(t, small, wide)

	again, err := provider.Embedder(DefaultLocalModel, 512)
	require.NoError(t, err)
	assert.Same(t, wide, again)
	assert.Equal(t, []int{256, 512}, sizes)

	// The base config is untouched
	assert.Equal(t, 256, provider.Config().Dimensions)
}

func TestProvider_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	provider, err := NewProvider(DefaultConfig(), func(*Config) (Embedder, error) {
		return nil, boom
	})
	require.NoError(t, err)

	_, err = provider.Embedder("", 0)
	assert.ErrorIs(t, err, boom)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(&Config{Backend: "nope"}, nil)
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	e := &stubEmbedder{model: "m"}
	provider := NewStaticProvider(e)

	got, err := provider.Embedder("anything", 64)
	require.NoError(t, err)
	assert.Same(t, Embedder(e), got)
	assert.NoError(t, provider.Close())
}

func TestResult(t *testing.T) {
	result := NewResult("m", 3)
	result.Vectors[0] = []float32{1}
	result.Vectors[1] = []float32{2}
	assert.NoError(t, result.Err(1))

	result.MarkFailed(1, ErrEmptyInput)
	assert.ErrorIs(t, result.Err(1), ErrEmptyInput)
	assert.Nil(t, result.Vectors[1])
	assert.NoError(t, result.Err(0))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTransient))
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.False(t, IsRetryable(ErrBackend))
	assert.False(t, IsRetryable(errors.New("other")))
}
