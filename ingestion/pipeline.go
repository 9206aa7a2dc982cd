package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docflow/blob"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/metrics"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/worker"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultBatchSize    = 16
	DefaultPollInterval = 2 * time.Second
	DefaultStaleAfter   = 5 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
	DefaultFetchRetries = 3
	DefaultRetryDelay   = 500 * time.Millisecond
)

// Parser claims ingestion events and turns them into documents and chunks.
// Each claimed event is handled on a worker pool.
type Parser struct {
	events    storage.EventLog
	documents storage.DocumentRepository
	blobs     blob.Store
	extractor Extractor
	splitter  textsplitter.TextSplitter
	pool      *ants.Pool
	handlers  map[core.Operation]handler

	poolSize        int
	workerID        string
	batchSize       int
	pollInterval    time.Duration
	staleAfter      time.Duration
	fetchTimeout    time.Duration
	fetchRetries    int
	retryDelay      time.Duration
	eventRetryLimit int
	logger          *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser) error

// WithPoolSize sets the number of events handled concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Parser) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets how many events are claimed per cycle.
func WithBatchSize(size int) Option {
	return func(p *Parser) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithPollInterval sets the wait between cycles that found no events.
func WithPollInterval(d time.Duration) Option {
	return func(p *Parser) error {
		if d <= 0 {
			return worker.ErrInvalidInterval
		}
		p.pollInterval = d
		return nil
	}
}

// WithStaleAfter sets how long an event may stay processing before another
// parser reclaims it.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Parser) error {
		p.staleAfter = d
		return nil
	}
}

// WithFetchTimeout bounds each blob fetch attempt.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Parser) error {
		p.fetchTimeout = d
		return nil
	}
}

// WithFetchRetries sets the number of fetch attempts for transient errors.
func WithFetchRetries(n int) Option {
	return func(p *Parser) error {
		if n < 1 {
			return worker.ErrInvalidMaxAttempts
		}
		p.fetchRetries = n
		return nil
	}
}

// WithRetryDelay sets the base delay between fetch attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Parser) error {
		p.retryDelay = d
		return nil
	}
}

// WithWorkerID sets the identity recorded on claimed events.
// Default is "parser-" followed by a random UUID.
func WithWorkerID(id string) Option {
	return func(p *Parser) error {
		if id != "" {
			p.workerID = id
		}
		return nil
	}
}

// WithEventRetryLimit returns transiently failing events to new while they
// have been attempted fewer than limit times. Zero leaves every failure for
// a manual reissue.
func WithEventRetryLimit(limit int) Option {
	return func(p *Parser) error {
		if limit < 0 {
			limit = 0
		}
		p.eventRetryLimit = limit
		return nil
	}
}

// WithExtractor replaces the text extractor.
func WithExtractor(extractor Extractor) Option {
	return func(p *Parser) error {
		if extractor != nil {
			p.extractor = extractor
		}
		return nil
	}
}

// WithSplitter replaces the chunking strategy.
func WithSplitter(splitter textsplitter.TextSplitter) Option {
	return func(p *Parser) error {
		if splitter != nil {
			p.splitter = splitter
		}
		return nil
	}
}

// NewParser creates a new parser. Call Release when done with it.
func NewParser(
	events storage.EventLog,
	documents storage.DocumentRepository,
	blobs blob.Store,
	opts ...Option,
) (*Parser, error) {
	if events == nil {
		return nil, ErrEventLogRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Parser{
		events:       events,
		documents:    documents,
		blobs:        blobs,
		extractor:    NewExtractor(),
		splitter:     NewWindowSplitter(DefaultChunkSize, DefaultChunkOverlap),
		poolSize:     poolSize,
		workerID:     "parser-" + uuid.NewString(),
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		staleAfter:   DefaultStaleAfter,
		fetchTimeout: DefaultFetchTimeout,
		fetchRetries: DefaultFetchRetries,
		retryDelay:   DefaultRetryDelay,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "parser", "worker", p.workerID)

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.handlers = map[core.Operation]handler{
		core.OperationCreated: &createdHandler{parser: p},
		core.OperationDeleted: &deletedHandler{parser: p},
	}
	return p, nil
}

// WorkerID returns the identity recorded on claimed events.
func (p *Parser) WorkerID() string {
	return p.workerID
}

// RunOnce claims one batch of events and handles every event in it. It
// returns the number of events claimed. Per-event failures are recorded on
// the events, not returned.
func (p *Parser) RunOnce(ctx context.Context) (int, error) {
	events, err := p.events.ClaimNext(ctx, p.workerID, p.batchSize, p.staleAfter)
	if err != nil {
		metrics.ProcessingErrorsTotal.WithLabelValues("claim").Inc()
		return 0, fmt.Errorf("claim events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	p.logger.Debug("claimed events", "count", len(events))

	var wg sync.WaitGroup
	for _, event := range events {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			p.process(ctx, event)
		}
		if err := p.pool.Submit(task); err != nil {
			p.logger.Warn("pool rejected event, handling inline", "event", event.ID, "err", err)
			task()
		}
	}
	wg.Wait()

	return len(events), nil
}

// Run polls for events until ctx is canceled.
func (p *Parser) Run(ctx context.Context) error {
	loop := &worker.Loop{Name: "parser", Interval: p.pollInterval, Logger: p.logger}
	return loop.Run(ctx, func(ctx context.Context) (bool, error) {
		n, err := p.RunOnce(ctx)
		return n > 0, err
	})
}

// process handles one claimed event and records its outcome.
func (p *Parser) process(ctx context.Context, event *core.IngestionEvent) {
	start := time.Now()
	logger := p.logger.With("event", event.ID, "item", event.ItemID, "operation", event.Operation)

	defer func() {
		if r := recover(); r != nil {
			metrics.ProcessingErrorsTotal.WithLabelValues("panic").Inc()
			logger.Error("event handler panicked", "panic", r)
			p.fail(ctx, logger, event, fmt.Errorf("internal error: %v", r))
		}
	}()

	h, ok := p.handlers[event.Operation]
	if !ok {
		p.fail(ctx, logger, event, fmt.Errorf("%w: %q", core.ErrInvalidOperation, event.Operation))
		return
	}

	if err := h.handle(ctx, event); err != nil {
		p.fail(ctx, logger, event, err)
		return
	}

	metrics.EventsProcessedTotal.WithLabelValues(string(event.Operation), string(core.EventDone)).Inc()
	metrics.DocumentProcessingDuration.WithLabelValues(string(event.Operation)).Observe(time.Since(start).Seconds())
	logger.Debug("event done", "duration", time.Since(start))
}

// fail records err on the event, returning it to new instead when the
// error is transient and the retry policy allows another attempt.
func (p *Parser) fail(ctx context.Context, logger *slog.Logger, event *core.IngestionEvent, err error) {
	if errors.Is(err, storage.ErrClaimLost) {
		logger.Warn("event claimed by another parser", "err", err)
		return
	}
	if ctx.Err() != nil {
		// Left in processing; the claim goes stale and is picked up again.
		logger.Info("event interrupted", "err", err)
		return
	}

	if isTransient(err) && event.Attempts < p.eventRetryLimit {
		if rerr := p.events.Requeue(ctx, event.ID, err.Error()); rerr != nil {
			logger.Error("failed to requeue event", "err", rerr, "cause", err)
			return
		}
		metrics.EventsProcessedTotal.WithLabelValues(string(event.Operation), "requeued").Inc()
		logger.Warn("event requeued", "attempts", event.Attempts, "err", err)
		return
	}

	if ferr := p.events.Fail(ctx, event.ID, err.Error()); ferr != nil {
		logger.Error("failed to record event failure", "err", ferr, "cause", err)
		return
	}
	metrics.EventsProcessedTotal.WithLabelValues(string(event.Operation), string(core.EventFailed)).Inc()
	logger.Error("event failed", "err", err)
}

// Release releases the worker pool.
// The parser should not be used after calling Release.
func (p *Parser) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
