package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/metrics"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/worker"
	"golang.org/x/time/rate"
)

// releaseTimeout bounds the cleanup writes made after the cycle context ends.
const releaseTimeout = 5 * time.Second

// Scope identifies a worker and the chunks it is responsible for.
type Scope struct {
	// Name labels checkpoints, logs and metrics.
	Name string
	// WorkerID is recorded on claims. It must be unique per running worker.
	WorkerID string
	// Since restricts claims to chunks created at or after it. Zero means all.
	Since time.Time
}

// CycleResult summarizes one RunCycle.
type CycleResult struct {
	Target    *core.EmbeddingTarget
	Claimed   int
	Completed int
	Failed    int
	Released  int
	Lost      int
	Requeued  int
	Exhausted int
	// RateLimited is set when the backend kept refusing and the claims were
	// handed back.
	RateLimited bool
}

// Processor runs the claim, embed and commit cycle shared by every worker.
type Processor struct {
	chunks      storage.ChunkRepository
	settings    storage.SettingsRepository
	checkpoints storage.CheckpointRepository
	provider    ai.AIProvider
	limiter     *rate.Limiter
	config      *Config
	logger      *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLimiter makes the processor share limiter with other processors
// calling the same backend.
func WithLimiter(limiter *rate.Limiter) ProcessorOption {
	return func(p *Processor) {
		p.limiter = limiter
	}
}

// NewProcessor creates a new processor. checkpoints may be nil.
func NewProcessor(
	chunks storage.ChunkRepository,
	settings storage.SettingsRepository,
	checkpoints storage.CheckpointRepository,
	provider ai.AIProvider,
	config *Config,
	logger *slog.Logger,
	opts ...ProcessorOption,
) (*Processor, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if settings == nil {
		return nil, ErrSettingsRepositoryRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		chunks:      chunks,
		settings:    settings,
		checkpoints: checkpoints,
		provider:    provider,
		config:      config,
		logger:      logger.With("component", "enrich"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.limiter == nil {
		p.limiter = config.NewLimiter()
	}
	return p, nil
}

// Config returns the processor's configuration.
func (p *Processor) Config() *Config {
	return p.config
}

// Limiter returns the limiter guarding embedding requests.
func (p *Processor) Limiter() *rate.Limiter {
	return p.limiter
}

// RunCycle claims one batch of chunks in scope, embeds it with the current
// target model and commits each chunk on its own. The target is read from
// storage on every call.
func (p *Processor) RunCycle(ctx context.Context, scope Scope) (*CycleResult, error) {
	logger := p.logger.With("worker", scope.Name)
	res := &CycleResult{}

	target, err := p.settings.EmbeddingTarget(ctx)
	if err != nil {
		return res, fmt.Errorf("read embedding target: %w", err)
	}
	res.Target = target

	res.Requeued, res.Exhausted, err = p.chunks.RequeueFailed(ctx, p.config.MaxAttempts)
	if err != nil {
		return res, fmt.Errorf("requeue failed chunks: %w", err)
	}
	metrics.ChunksExhausted.WithLabelValues(scope.Name).Set(float64(res.Exhausted))
	if res.Requeued > 0 {
		logger.Info("requeued failed chunks", "count", res.Requeued)
	}
	if res.Exhausted > 0 {
		logger.Warn("chunks out of attempts", "count", res.Exhausted, "max_attempts", p.config.MaxAttempts)
	}

	claimed, err := p.chunks.ClaimBatch(ctx, storage.ClaimRequest{
		WorkerID:      scope.WorkerID,
		TargetVersion: target.Version,
		Limit:         p.config.BatchSize,
		StaleAfter:    p.config.StaleAfter,
		Since:         scope.Since,
	})
	if err != nil {
		return res, fmt.Errorf("claim chunks: %w", err)
	}
	res.Claimed = len(claimed)
	if len(claimed) == 0 {
		p.saveCheckpoint(ctx, logger, scope, res)
		return res, nil
	}
	logger.Debug("claimed chunks", "count", len(claimed), "target_version", target.Version, "model", target.Model)

	err = p.process(ctx, logger, scope, target, claimed, res)
	p.saveCheckpoint(ctx, logger, scope, res)
	return res, err
}

func (p *Processor) process(ctx context.Context, logger *slog.Logger, scope Scope, target *core.EmbeddingTarget, claimed []*core.Chunk, res *CycleResult) error {
	embedder, err := p.provider.Embedder(target.Model, target.Dimensions)
	if err != nil {
		p.release(ctx, logger, scope, claimed, res)
		return fmt.Errorf("load embedder %q: %w", target.Model, err)
	}

	texts := make([]string, len(claimed))
	for i, chunk := range claimed {
		texts[i] = chunk.Text
	}

	result, err := p.embed(ctx, embedder, target.Model, scope.Name, texts)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		p.release(ctx, logger, scope, claimed, res)
		return ctx.Err()
	case errors.Is(err, ai.ErrRateLimited):
		p.release(ctx, logger, scope, claimed, res)
		res.RateLimited = true
		logger.Warn("embedding backend rate limited, claims released", "count", res.Released)
		return nil
	default:
		logger.Error("embedding batch failed", "count", len(claimed), "err", err)
		for _, chunk := range claimed {
			p.failChunk(ctx, logger, scope, chunk, "batch", err, res)
		}
		return nil
	}

	if result.Model != "" && result.Model != target.Model {
		p.release(ctx, logger, scope, claimed, res)
		return fmt.Errorf("%w: target %q, backend reported %q", ai.ErrModelMismatch, target.Model, result.Model)
	}

	var errs []error
	for i, chunk := range claimed {
		var vec []float32
		itemErr := result.Err(i)
		if itemErr == nil && i >= len(result.Vectors) {
			itemErr = fmt.Errorf("%w: no vector for input %d", ai.ErrBackend, i)
		}
		if itemErr == nil {
			vec, itemErr = prepareVector(result.Vectors[i], target.Dimensions)
		}
		if itemErr != nil {
			p.failChunk(ctx, logger, scope, chunk, "item", itemErr, res)
			continue
		}

		err := p.chunks.CompleteChunk(ctx, scope.WorkerID, chunk.ID, vec, target.Version, target.Model)
		switch {
		case err == nil:
			res.Completed++
		case errors.Is(err, storage.ErrClaimLost), errors.Is(err, storage.ErrStaleVersion):
			res.Lost++
			logger.Warn("chunk not committed", "chunk", chunk.ID, "err", err)
		default:
			errs = append(errs, fmt.Errorf("complete chunk %d: %w", chunk.ID, err))
		}
	}

	metrics.ChunksEnrichedTotal.WithLabelValues(scope.Name).Add(float64(res.Completed))
	logger.Info("cycle finished",
		"claimed", res.Claimed, "completed", res.Completed, "failed", res.Failed,
		"lost", res.Lost, "version", target.Version)
	return errors.Join(errs...)
}

// embed calls the backend under the rate limiter, retrying transient and
// rate limit errors with exponential backoff.
func (p *Processor) embed(ctx context.Context, embedder ai.Embedder, model, workerName string, texts []string) (*ai.Result, error) {
	var result *ai.Result
	err := worker.RetryIf(ctx, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()

		start := time.Now()
		r, err := embedder.Embed(callCtx, texts)
		metrics.EmbeddingRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			metrics.EmbeddingRequestsTotal.WithLabelValues(model, "success").Inc()
		case errors.Is(err, ai.ErrRateLimited):
			metrics.EmbeddingRequestsTotal.WithLabelValues(model, "rate_limited").Inc()
			metrics.RateLimitedTotal.WithLabelValues(workerName).Inc()
		default:
			metrics.EmbeddingRequestsTotal.WithLabelValues(model, "error").Inc()
		}
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: empty result", ai.ErrBackend)
		}
		result = r
		return nil
	}, p.config.EmbedRetries, p.config.RetryDelay, ai.IsRetryable)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Processor) failChunk(ctx context.Context, logger *slog.Logger, scope Scope, chunk *core.Chunk, reason string, cause error, res *CycleResult) {
	err := p.chunks.FailChunk(ctx, scope.WorkerID, chunk.ID, cause.Error())
	switch {
	case err == nil:
		res.Failed++
		metrics.ChunkFailuresTotal.WithLabelValues(scope.Name, reason).Inc()
		logger.Warn("chunk failed", "chunk", chunk.ID, "attempt", chunk.AttemptCount+1, "err", cause)
	case errors.Is(err, storage.ErrClaimLost):
		res.Lost++
		logger.Warn("chunk claim lost before failure was recorded", "chunk", chunk.ID)
	default:
		logger.Error("failed to record chunk failure", "chunk", chunk.ID, "err", err, "cause", cause)
	}
}

// release hands claims back without counting an attempt. It runs on a
// context detached from cancellation so shutdown does not strand claims.
func (p *Processor) release(ctx context.Context, logger *slog.Logger, scope Scope, claimed []*core.Chunk, res *CycleResult) {
	ids := make([]core.ID, len(claimed))
	for i, chunk := range claimed {
		ids[i] = chunk.ID
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.chunks.ReleaseChunks(releaseCtx, scope.WorkerID, ids...); err != nil {
		logger.Error("failed to release chunks", "count", len(ids), "err", err)
		return
	}
	res.Released += len(ids)
	metrics.ChunksReleasedTotal.WithLabelValues(scope.Name).Add(float64(len(ids)))
}

func (p *Processor) saveCheckpoint(ctx context.Context, logger *slog.Logger, scope Scope, res *CycleResult) {
	if p.checkpoints == nil {
		return
	}
	cp := &core.Checkpoint{
		Worker:    scope.Name,
		LastRunAt: time.Now().UTC(),
		Claimed:   res.Claimed,
		Completed: res.Completed,
		Failed:    res.Failed,
		Released:  res.Released,
		Exhausted: res.Exhausted,
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.checkpoints.SaveCheckpoint(saveCtx, cp); err != nil {
		logger.Warn("failed to save checkpoint", "err", err)
	}
}
