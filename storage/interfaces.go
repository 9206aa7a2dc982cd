package storage

import (
	"context"
	"time"

	"github.com/poiesic/docflow/core"
)

// EventLog is the durable record of ingestion signals.
// Implementations must be thread-safe and safe to share between processes
// that open the same store.
type EventLog interface {
	// AppendEvents stores new events with status new.
	// IDs and CreatedAt are assigned by the log.
	AppendEvents(ctx context.Context, events ...*core.IngestionEvent) ([]*core.IngestionEvent, error)

	// ClaimNext atomically moves up to batchSize events from new to processing,
	// oldest first, and returns them. Events left in processing for longer than
	// staleAfter are claimable again. An item never has two processing events.
	ClaimNext(ctx context.Context, workerID string, batchSize int, staleAfter time.Duration) ([]*core.IngestionEvent, error)

	// Complete marks a processing event done.
	Complete(ctx context.Context, id core.ID) error

	// Fail marks a processing event failed with detail. Failed events stay
	// failed until Reissue is called.
	Fail(ctx context.Context, id core.ID, detail string) error

	// Requeue returns a processing event to new and counts the attempt.
	Requeue(ctx context.Context, id core.ID, detail string) error

	// Reissue moves a failed event back to new.
	Reissue(ctx context.Context, id core.ID) error

	// GetEvent retrieves a single event.
	// Returns ErrNotFound if the event doesn't exist.
	GetEvent(ctx context.Context, id core.ID) (*core.IngestionEvent, error)

	// ListEvents returns up to limit events with the given status, oldest first.
	ListEvents(ctx context.Context, status core.EventStatus, limit int) ([]*core.IngestionEvent, error)

	// CountByStatus returns the number of events in each status.
	CountByStatus(ctx context.Context) (map[core.EventStatus]int, error)

	// Close releases the ID sequence.
	Close() error
}

// DocumentRepository persists parsed documents. Writes are transactional with
// the completion of the ingestion event that produced them.
type DocumentRepository interface {
	// CommitParse writes doc and its chunks, supersedes the item's previously
	// active document and marks event done, all in one transaction.
	// If doc already exists nothing is rewritten and created is false.
	CommitParse(ctx context.Context, event *core.IngestionEvent, doc *core.Document, chunks []*core.Chunk) (created bool, err error)

	// CommitDelete soft-deletes the item's active document and marks event
	// done in one transaction. Returns the deleted document, or nil when the
	// item had no active document.
	CommitDelete(ctx context.Context, event *core.IngestionEvent) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetActiveDocument returns the item's document with Deleted=false.
	// Returns ErrNotFound if there is none.
	GetActiveDocument(ctx context.Context, itemID string) (*core.Document, error)

	// ListDocuments returns every document version for the item, oldest first.
	ListDocuments(ctx context.Context, itemID string) ([]*core.Document, error)
}

// ClaimRequest selects chunks for one enrichment pass.
type ClaimRequest struct {
	WorkerID      string
	TargetVersion uint64
	Limit         int
	// StaleAfter makes processing chunks claimed before Now-StaleAfter eligible.
	StaleAfter time.Duration
	// Since restricts the pass to chunks created at or after it. Zero means all.
	Since time.Time
	// Now defaults to time.Now().
	Now time.Time
}

// ChunkRepository is the shared chunk table consumed by enrichment workers
// and the search layer.
type ChunkRepository interface {
	// GetChunk retrieves a chunk including its vector.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunksByDocument returns a document's chunks in ordinal order,
	// regardless of status or deletion.
	GetChunksByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// ClaimBatch selects chunks that are pending, stale in processing, or
	// completed below req.TargetVersion, oldest-updated first, and moves them
	// to processing in the same transaction.
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]*core.Chunk, error)

	// CompleteChunk stores the vector if the chunk is still claimed by
	// workerID. Returns ErrClaimLost or ErrStaleVersion otherwise.
	CompleteChunk(ctx context.Context, workerID string, id core.ID, vector []float32, version uint64, model string) error

	// FailChunk marks a claimed chunk failed and counts the attempt.
	FailChunk(ctx context.Context, workerID string, id core.ID, detail string) error

	// ReleaseChunks returns claimed chunks to pending without counting an attempt.
	ReleaseChunks(ctx context.Context, workerID string, ids ...core.ID) error

	// RequeueFailed moves failed chunks with fewer than maxAttempts attempts
	// back to pending and counts the ones that are exhausted.
	RequeueFailed(ctx context.Context, maxAttempts int) (requeued int, exhausted int, err error)

	// SearchableChunks returns the completed chunks of a non-deleted document.
	SearchableChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// FindSimilar scores completed chunks of non-deleted documents against vector.
	// Returns results with similarity >= minSimilarity, highest first, up to limit.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	// Stats counts chunks per status; Stale counts completed chunks below targetVersion.
	Stats(ctx context.Context, targetVersion uint64) (*core.ChunkStats, error)
}

// SettingsRepository holds persisted runtime configuration.
type SettingsRepository interface {
	// EmbeddingTarget returns the current target.
	// Returns ErrNotFound if none was stored yet.
	EmbeddingTarget(ctx context.Context) (*core.EmbeddingTarget, error)

	// SetEmbeddingTarget replaces the target. The version may not decrease.
	SetEmbeddingTarget(ctx context.Context, target *core.EmbeddingTarget) error

	// EnsureEmbeddingTarget stores def unless a target already exists, and
	// returns whichever is current.
	EnsureEmbeddingTarget(ctx context.Context, def *core.EmbeddingTarget) (*core.EmbeddingTarget, error)

	// BumpVersion increments the target version, optionally switching model
	// and dimensions (empty model / zero dims keep the current values).
	BumpVersion(ctx context.Context, model string, dims int) (*core.EmbeddingTarget, error)
}

// CheckpointRepository stores per-worker cycle summaries.
type CheckpointRepository interface {
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error
	// LoadCheckpoint returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, worker string) (*core.Checkpoint, error)
	ListCheckpoints(ctx context.Context) ([]*core.Checkpoint, error)
}
