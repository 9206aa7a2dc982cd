// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names an embedding implementation.
type Backend string

const (
	// BackendLocal embeds in-process with a feature hashing model.
	BackendLocal Backend = "local"
	// BackendOpenAI calls an OpenAI-compatible API with the go-openai client.
	BackendOpenAI Backend = "openai"
	// BackendLangchain calls an OpenAI-compatible API through langchaingo.
	BackendLangchain Backend = "langchain"
)

// DefaultLocalModel is the model name the local backend reports by default.
const DefaultLocalModel = "hashing-256"

// Config holds configuration for embedding backends.
type Config struct {
	// Backend selects the implementation. Default: local
	Backend Backend

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey authenticates against remote backends. Local OpenAI-compatible
	// servers usually accept any value.
	APIKey string

	// Dimensions requests a vector size. Zero keeps the model's native size.
	// The local backend requires a positive value.
	Dimensions int

	// BatchSize caps the number of texts sent in one request.
	// Default: 32
	BatchSize int

	// Timeout bounds a single embedding request.
	// Default: 30s
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend selects the embedding implementation.
func WithBackend(backend Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the API key for remote backends.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimensions sets the requested vector size.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithBatchSize sets the maximum number of texts per request.
func WithBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// DefaultConfig returns a Config that embeds in-process, so a fresh install
// works without any external service.
func DefaultConfig() *Config {
	return &Config{
		Backend:        BackendLocal,
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: DefaultLocalModel,
		APIKey:         "none",
		Dimensions:     256,
		BatchSize:      32,
		Timeout:        30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend(BackendOpenAI),
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithEmbeddingModel("embeddinggemma"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Remote reports whether the backend talks to an HTTP service.
func (c *Config) Remote() bool {
	return c.Backend == BackendOpenAI || c.Backend == BackendLangchain
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/") + "/v1"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Backend {
	case BackendLocal:
		if c.Dimensions <= 0 {
			return errors.New("ai config: Dimensions must be positive for the local backend")
		}
	case BackendOpenAI, BackendLangchain:
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
		if c.Dimensions < 0 {
			return errors.New("ai config: Dimensions cannot be negative")
		}
	default:
		return fmt.Errorf("ai config: %w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	return nil
}

// WithModel returns a copy of c serving model instead.
func (c *Config) WithModel(model string) *Config {
	clone := *c
	if model != "" {
		clone.EmbeddingModel = model
	}
	return &clone
}

// WithTarget returns a copy of c serving model at the given vector size.
// Empty or zero arguments keep the configured values.
func (c *Config) WithTarget(model string, dims int) *Config {
	clone := c.WithModel(model)
	if dims > 0 {
		clone.Dimensions = dims
	}
	return clone
}
