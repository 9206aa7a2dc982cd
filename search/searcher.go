package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/enrich"
	"github.com/poiesic/docflow/storage"
)

const (
	// DefaultMinSimilarity drops candidates scoring below it.
	DefaultMinSimilarity = 0.2
	// verbatimBoost is added to chunks containing every query keyword.
	verbatimBoost = 0.3
	// candidateFactor over-fetches so verbatim boosts can reorder the tail.
	candidateFactor = 2
)

// Searcher runs similarity queries over completed chunks.
type Searcher struct {
	chunks        storage.ChunkRepository
	settings      storage.SettingsRepository
	provider      ai.AIProvider
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the cosine similarity threshold.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		if min < -1 || min > 1 {
			return fmt.Errorf("min similarity must be within [-1, 1], got %v", min)
		}
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	chunks storage.ChunkRepository,
	settings storage.SettingsRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if settings == nil {
		return nil, ErrSettingsRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		chunks:        chunks,
		settings:      settings,
		provider:      provider,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar searches for chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor searches for chunks similar to the query with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		return []*core.SearchResult{}, nil
	}

	monitor.Start(query)

	vector, target, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	monitor.AfterEmbedding(target, len(vector))

	candidates, err := s.chunks.FindSimilar(ctx, vector, s.minSimilarity, maxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(candidates)

	terms := keywords(query)
	for _, result := range candidates {
		if containsAll(result.Chunk.Text, terms) {
			result.Score += verbatimBoost
			monitor.VerbatimHit(result.Chunk)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxHits {
		candidates = candidates[:maxHits]
	}
	monitor.Finish(candidates)

	return candidates, nil
}

// DocumentChunks returns the searchable chunks of one document in order.
func (s *Searcher) DocumentChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	return s.chunks.SearchableChunks(ctx, documentID)
}

// embedQuery embeds query with the target model and normalizes the vector
// the same way stored chunk vectors are.
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, *core.EmbeddingTarget, error) {
	target, err := s.settings.EmbeddingTarget(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read embedding target: %w", err)
	}

	embedder, err := s.provider.Embedder(target.Model, target.Dimensions)
	if err != nil {
		return nil, nil, fmt.Errorf("load embedder %q: %w", target.Model, err)
	}

	result, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, nil, err
	}
	if err := result.Err(0); err != nil {
		return nil, nil, err
	}
	if len(result.Vectors) == 0 {
		return nil, nil, fmt.Errorf("%w: no vector for query", ai.ErrBackend)
	}

	if err := core.ValidateVector(result.Vectors[0], target.Dimensions); err != nil {
		return nil, nil, err
	}
	vector, err := enrich.NormalizeVector(result.Vectors[0])
	if err != nil {
		return nil, nil, err
	}
	return vector, target, nil
}
