package ai

import (
	"log/slog"
	"strconv"
	"sync"
)

// Factory builds an embedder for a validated configuration.
type Factory func(config *Config) (Embedder, error)

// Provider implements AIProvider by building one embedder per model and vector
// size on first use and reusing it afterwards. When the persisted target
// switches models or dimensions the next request builds the new backend and
// later cycles reuse it.
type Provider struct {
	config    *Config
	factory   Factory
	mu        sync.Mutex
	embedders map[string]Embedder
	logger    *slog.Logger
}

var _ AIProvider = (*Provider)(nil)

// NewProvider creates a caching provider. The config is validated and
// normalized before use.
func NewProvider(config *Config, factory Factory) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		config:    config,
		factory:   factory,
		embedders: make(map[string]Embedder),
		logger:    slog.Default().With("component", "ai-provider"),
	}, nil
}

// Embedder returns the embedder for model and dims, building it if needed.
// Each (model, dims) pair gets its own embedder.
func (p *Provider) Embedder(model string, dims int) (Embedder, error) {
	cfg := p.config.WithTarget(model, dims)
	key := cfg.EmbeddingModel + "#" + strconv.Itoa(cfg.Dimensions)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.embedders[key]; ok {
		return e, nil
	}

	p.logger.Info("loading embedding backend", "backend", cfg.Backend, "model", cfg.EmbeddingModel, "dims", cfg.Dimensions)
	e, err := p.factory(cfg)
	if err != nil {
		return nil, err
	}
	p.embedders[key] = e
	return e, nil
}

// Config returns the provider's base configuration.
func (p *Provider) Config() *Config {
	return p.config
}

// Close drops cached embedders.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Debug("closing provider", "embedders", len(p.embedders))
	clear(p.embedders)
	return nil
}

// StaticProvider serves one embedder regardless of the requested model.
// Model checks happen in the caller against Embedder.Model.
type StaticProvider struct {
	embedder Embedder
}

var _ AIProvider = (*StaticProvider)(nil)

// NewStaticProvider wraps a single embedder.
func NewStaticProvider(embedder Embedder) *StaticProvider {
	return &StaticProvider{embedder: embedder}
}

// Embedder returns the wrapped embedder.
func (p *StaticProvider) Embedder(string, int) (Embedder, error) {
	return p.embedder, nil
}

// Close is a no-op.
func (p *StaticProvider) Close() error {
	return nil
}
