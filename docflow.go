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


// Package docflow wires the event log, parser, enrichment workers and search
// on top of one Badger database.
package docflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/langchain"
	"github.com/poiesic/docflow/ai/local"
	"github.com/poiesic/docflow/ai/openai"
	"github.com/poiesic/docflow/blob"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/enrich"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/search"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"golang.org/x/time/rate"
)

// ErrNoBlobStore is returned when a parser is requested from a database
// opened without a blob store.
var ErrNoBlobStore = errors.New("no blob store configured")

type Database struct {
	repos    *badger.Repositories
	provider ai.AIProvider
	blobs    blob.Store
	// base is handed to the components, logger tags the database's own lines.
	base   *slog.Logger
	logger *slog.Logger

	limiterMu sync.Mutex
	limiter   *rate.Limiter
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	aiConfigSet bool
	provider ai.AIProvider
	blobs    blob.Store
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the embedding backend configuration. It seeds the
// embedding target the first time a database is opened. On later opens a
// model or dimension that differs from the stored target bumps the version
// so backfill migrates every chunk to the configured model.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
		o.aiConfigSet = true
	}
}

// WithProvider replaces the provider built from the AI config.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithEmbedder serves every model from a single embedder.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return WithProvider(ai.NewStaticProvider(embedder))
}

// WithBlobStore sets the store parsers fetch document bytes from.
func WithBlobStore(store blob.Store) DatabaseOption {
	return func(o *databaseOptions) {
		o.blobs = store
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.aiConfig.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	repos, err := badger.NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = NewProvider(options.aiConfig)
		if err != nil {
			repos.Close()
			return nil, err
		}
	}

	logger := options.logger.With("component", "database")
	target, err := syncEmbeddingTarget(context.Background(), repos.Settings, options, logger)
	if err != nil {
		provider.Close()
		repos.Close()
		return nil, fmt.Errorf("initialize embedding target: %w", err)
	}
	logger.Debug("database opened", "path", filePath, "in_memory", options.inMemory,
		"model", target.Model, "version", target.Version)

	return &Database{
		repos:    repos,
		provider: provider,
		blobs:    options.blobs,
		base:     options.logger,
		logger:   logger,
	}, nil
}

// syncEmbeddingTarget seeds the target on first open. When the caller passed
// an AI config whose model or dimensions no longer match the stored target,
// the version is bumped to the configured values.
func syncEmbeddingTarget(ctx context.Context, settings *badger.SettingsRepository, options *databaseOptions, logger *slog.Logger) (*core.EmbeddingTarget, error) {
	cfg := options.aiConfig
	target, err := settings.EnsureEmbeddingTarget(ctx, &core.EmbeddingTarget{
		Model:      cfg.EmbeddingModel,
		Version:    1,
		Dimensions: cfg.Dimensions,
	})
	if err != nil || !options.aiConfigSet || !targetDiffers(target, cfg) {
		return target, err
	}

	logger.Warn("embedding config changed, migrating chunks",
		"stored_model", target.Model, "stored_dims", target.Dimensions,
		"model", cfg.EmbeddingModel, "dims", cfg.Dimensions)
	return settings.BumpVersion(ctx, cfg.EmbeddingModel, cfg.Dimensions)
}

// targetDiffers reports whether cfg asks for another model or vector size.
// Zero dimensions leave the size to the backend.
func targetDiffers(target *core.EmbeddingTarget, cfg *ai.Config) bool {
	if target.Model != cfg.EmbeddingModel {
		return true
	}
	return cfg.Dimensions > 0 && target.Dimensions != cfg.Dimensions
}

// EmbedderFactory returns the constructor for backend.
func EmbedderFactory(backend ai.Backend) (ai.Factory, error) {
	switch backend {
	case ai.BackendLocal, "":
		return local.NewEmbedder, nil
	case ai.BackendOpenAI:
		return openai.NewEmbedder, nil
	case ai.BackendLangchain:
		return langchain.NewEmbedder, nil
	default:
		return nil, fmt.Errorf("%w: %q", ai.ErrUnknownBackend, backend)
	}
}

// NewProvider builds a provider for the configured backend.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if config.Backend == ai.BackendOpenAI {
		return openai.NewProvider(config)
	}
	factory, err := EmbedderFactory(config.Backend)
	if err != nil {
		return nil, err
	}
	return ai.NewProvider(config, factory)
}

func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.repos.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Append records a created or deleted event for itemID. The item ID doubles
// as the blob reference.
func (db *Database) Append(ctx context.Context, itemID string, op core.Operation) (*core.IngestionEvent, error) {
	return db.AppendSource(ctx, itemID, op, "")
}

// AppendSource records an event whose bytes live under source rather than
// under the item ID.
func (db *Database) AppendSource(ctx context.Context, itemID string, op core.Operation, source string) (*core.IngestionEvent, error) {
	events, err := db.repos.Events.AppendEvents(ctx, &core.IngestionEvent{
		ItemID:    itemID,
		Operation: op,
		Source:    source,
	})
	if err != nil {
		return nil, err
	}
	return events[0], nil
}

// Reissue moves a failed event back to new.
func (db *Database) Reissue(ctx context.Context, id core.ID) error {
	return db.repos.Events.Reissue(ctx, id)
}

// NewParser creates a parser over the database's event log and blob store.
// Callers must Release it.
func (db *Database) NewParser(opts ...ingestion.Option) (*ingestion.Parser, error) {
	if db.blobs == nil {
		return nil, ErrNoBlobStore
	}
	return ingestion.NewParser(db.repos.Events, db.repos.Documents, db.blobs, opts...)
}

// NewProcessor creates the enrichment routine shared by both workers.
// A nil config uses enrich.DefaultConfig. Every processor of a database
// draws from one rate limiter, sized by the first config seen.
func (db *Database) NewProcessor(config *enrich.Config) (*enrich.Processor, error) {
	if config == nil {
		config = enrich.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return enrich.NewProcessor(db.repos.Chunks, db.repos.Settings, db.repos.Checkpoints, db.provider, config, db.base,
		enrich.WithLimiter(db.sharedLimiter(config)))
}

func (db *Database) sharedLimiter(config *enrich.Config) *rate.Limiter {
	db.limiterMu.Lock()
	defer db.limiterMu.Unlock()
	if db.limiter == nil {
		db.limiter = config.NewLimiter()
	}
	return db.limiter
}

func (db *Database) NewInlineWorker(config *enrich.Config) (*enrich.Worker, error) {
	p, err := db.NewProcessor(config)
	if err != nil {
		return nil, err
	}
	return enrich.NewInlineWorker(p), nil
}

func (db *Database) NewBackfillWorker(config *enrich.Config) (*enrich.Worker, error) {
	p, err := db.NewProcessor(config)
	if err != nil {
		return nil, err
	}
	return enrich.NewBackfillWorker(p), nil
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.repos.Chunks, db.repos.Settings, db.provider, opts...)
}

// EmbeddingTarget returns the model and version workers embed with.
func (db *Database) EmbeddingTarget(ctx context.Context) (*core.EmbeddingTarget, error) {
	return db.repos.Settings.EmbeddingTarget(ctx)
}

// Health reports the embedding target read in a fresh transaction. It fails
// once the database has been closed.
func (db *Database) Health(ctx context.Context) (*core.EmbeddingTarget, error) {
	if db.repos.Backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return db.repos.Settings.EmbeddingTarget(ctx)
}

// BumpEmbeddingVersion raises the target version so backfill re-embeds every
// completed chunk. An empty model or zero dims keep the current values.
func (db *Database) BumpEmbeddingVersion(ctx context.Context, model string, dims int) (*core.EmbeddingTarget, error) {
	target, err := db.repos.Settings.BumpVersion(ctx, model, dims)
	if err != nil {
		return nil, err
	}
	db.logger.Info("embedding version bumped", "model", target.Model, "version", target.Version, "dims", target.Dimensions)
	return target, nil
}

// Status summarizes queue depths and enrichment progress.
type Status struct {
	Target      *core.EmbeddingTarget
	Events      map[core.EventStatus]int
	Chunks      *core.ChunkStats
	Checkpoints []*core.Checkpoint
}

func (db *Database) Status(ctx context.Context) (*Status, error) {
	target, err := db.repos.Settings.EmbeddingTarget(ctx)
	if err != nil {
		return nil, err
	}
	events, err := db.repos.Events.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := db.repos.Chunks.Stats(ctx, target.Version)
	if err != nil {
		return nil, err
	}
	checkpoints, err := db.repos.Checkpoints.ListCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Target: target, Events: events, Chunks: chunks, Checkpoints: checkpoints}, nil
}

func (db *Database) EventLog() storage.EventLog {
	return db.repos.Events
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.repos.Documents
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.repos.Chunks
}

func (db *Database) SettingsRepository() storage.SettingsRepository {
	return db.repos.Settings
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.repos.Checkpoints
}

// BlobStore returns the configured blob store, or nil.
func (db *Database) BlobStore() blob.Store {
	return db.blobs
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}
