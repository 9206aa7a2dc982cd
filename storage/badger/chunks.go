package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// GetChunk retrieves a chunk including its vector.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		chunk, err = readChunk(tx, id, true)
		return err
	})
	return chunk, err
}

// GetChunksByDocument returns a document's chunks in ordinal order.
func (r *ChunkRepository) GetChunksByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		chunks, err = documentChunks(tx, documentID)
		return err
	})
	return chunks, err
}

// ClaimBatch selects and claims up to req.Limit chunks in one transaction.
func (r *ChunkRepository) ClaimBatch(ctx context.Context, req storage.ClaimRequest) ([]*core.Chunk, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if req.WorkerID == "" {
		return nil, fmt.Errorf("%w: worker id required", storage.ErrInvalidQuery)
	}
	if req.TargetVersion < 1 {
		return nil, fmt.Errorf("%w: target version must be at least 1", storage.ErrInvalidQuery)
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var claimed []*core.Chunk
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		claimed = nil

		candidates, err := selectCandidates(tx, req, now)
		if err != nil {
			return err
		}

		for _, chunk := range candidates {
			old := *chunk
			chunk.Status = core.ChunkProcessing
			chunk.ClaimedAt = now
			chunk.ClaimedBy = req.WorkerID
			chunk.UpdatedAt = now
			if err := putChunk(tx, &old, chunk); err != nil {
				return err
			}
			claimed = append(claimed, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// selectCandidates gathers up to req.Limit chunks from each source of work
// and returns the req.Limit least recently updated.
func selectCandidates(tx *badger.Txn, req storage.ClaimRequest, now time.Time) ([]*core.Chunk, error) {
	var candidates []*core.Chunk
	inScope := func(chunk *core.Chunk) bool {
		return req.Since.IsZero() || !chunk.CreatedAt.Before(req.Since)
	}

	collect := func(prefix []byte, stop func(key []byte) bool) error {
		found := 0
		return forEachKey(tx, prefix, func(key []byte) (bool, error) {
			if found >= req.Limit || stop(key) {
				return false, nil
			}
			chunk, err := readChunk(tx, idAt(key), false)
			if err != nil {
				return false, err
			}
			if inScope(chunk) {
				candidates = append(candidates, chunk)
				found++
			}
			return true, nil
		})
	}

	pending := makeChunkStatusPrefix(core.ChunkPending)
	if err := collect(pending, func([]byte) bool { return false }); err != nil {
		return nil, err
	}

	if req.StaleAfter > 0 {
		processing := makeChunkStatusPrefix(core.ChunkProcessing)
		cutoff := micros(now.Add(-req.StaleAfter))
		err := collect(processing, func(key []byte) bool {
			return uint64At(key, len(processing)) > cutoff
		})
		if err != nil {
			return nil, err
		}
	}

	versioned := []byte(chunkVersionPrefix)
	err := collect(versioned, func(key []byte) bool {
		return uint64At(key, len(versioned)) >= req.TargetVersion
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(candidates, func(a, b *core.Chunk) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}
	return candidates, nil
}

// CompleteChunk stores the vector of a chunk still claimed by workerID.
func (r *ChunkRepository) CompleteChunk(ctx context.Context, workerID string, id core.ID, vector []float32, version uint64, model string) error {
	if err := core.ValidateVector(vector, 0); err != nil {
		return err
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		chunk, err := claimedChunk(tx, workerID, id)
		if err != nil {
			return err
		}
		if version < chunk.EmbeddingVersion {
			return fmt.Errorf("%w: chunk %d has version %d, write has %d",
				storage.ErrStaleVersion, id, chunk.EmbeddingVersion, version)
		}

		old := *chunk
		chunk.Vector = vector
		chunk.EmbeddingVersion = version
		chunk.EmbeddingModel = model
		chunk.Status = core.ChunkCompleted
		chunk.ClaimedAt = time.Time{}
		chunk.ClaimedBy = ""
		chunk.AttemptCount = 0
		chunk.LastError = ""
		chunk.UpdatedAt = time.Now().UTC()
		return putChunk(tx, &old, chunk)
	})
}

// FailChunk marks a claimed chunk failed and counts the attempt.
func (r *ChunkRepository) FailChunk(ctx context.Context, workerID string, id core.ID, detail string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		chunk, err := claimedChunk(tx, workerID, id)
		if err != nil {
			return err
		}

		old := *chunk
		chunk.Status = core.ChunkFailed
		chunk.ClaimedAt = time.Time{}
		chunk.ClaimedBy = ""
		chunk.AttemptCount++
		chunk.LastError = detail
		chunk.UpdatedAt = time.Now().UTC()
		return putChunk(tx, &old, chunk)
	})
}

// ReleaseChunks gives claimed chunks back without counting an attempt.
// A chunk that already had an embedding goes back to completed at its old
// version so it stays searchable until it is re-embedded.
func (r *ChunkRepository) ReleaseChunks(ctx context.Context, workerID string, ids ...core.ID) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := claimedChunk(tx, workerID, id)
			if errors.Is(err, storage.ErrClaimLost) {
				continue
			}
			if err != nil {
				return err
			}

			old := *chunk
			chunk.Status = core.ChunkPending
			if chunk.EmbeddingVersion > 0 {
				chunk.Status = core.ChunkCompleted
			}
			chunk.ClaimedAt = time.Time{}
			chunk.ClaimedBy = ""
			chunk.UpdatedAt = time.Now().UTC()
			if err := putChunk(tx, &old, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// RequeueFailed moves retryable failed chunks back to pending.
func (r *ChunkRepository) RequeueFailed(ctx context.Context, maxAttempts int) (int, int, error) {
	var requeued, exhausted int
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		requeued, exhausted = 0, 0

		keys, err := scanKeys(tx, makeChunkStatusPrefix(core.ChunkFailed), 0)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, key := range keys {
			chunk, err := readChunk(tx, idAt(key), false)
			if err != nil {
				return err
			}
			if chunk.AttemptCount >= maxAttempts {
				exhausted++
				continue
			}
			old := *chunk
			chunk.Status = core.ChunkPending
			chunk.UpdatedAt = now
			if err := putChunk(tx, &old, chunk); err != nil {
				return err
			}
			requeued++
		}
		return nil
	})
	return requeued, exhausted, err
}

// SearchableChunks returns the completed chunks of a non-deleted document.
func (r *ChunkRepository) SearchableChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, documentID)
		if err != nil {
			return err
		}
		if doc.Deleted {
			return nil
		}
		chunks, err := documentChunks(tx, documentID)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			if chunk.Status == core.ChunkCompleted {
				result = append(result, chunk)
			}
		}
		return nil
	})
	return result, err
}

// FindSimilar scores completed chunks of non-deleted documents against vector.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := r.backend.View(func(tx *badger.Txn) error {
		deleted := make(map[core.ID]bool)
		return forEachKey(tx, []byte(chunkVersionPrefix), func(key []byte) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			chunk, err := readChunk(tx, idAt(key), true)
			if err != nil {
				return false, err
			}

			isDeleted, seen := deleted[chunk.DocumentID]
			if !seen {
				doc, err := readDocument(tx, chunk.DocumentID)
				if err != nil {
					return false, err
				}
				isDeleted = doc.Deleted
				deleted[chunk.DocumentID] = isDeleted
			}
			if isDeleted || len(chunk.Vector) != len(vector) {
				return true, nil
			}

			// Cosine similarity (dot product for normalized vectors)
			similarity := dotProduct(vector, chunk.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.SearchResult{
					Chunk: chunk,
					Score: similarity,
				})
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats counts chunks per status.
func (r *ChunkRepository) Stats(ctx context.Context, targetVersion uint64) (*core.ChunkStats, error) {
	stats := &core.ChunkStats{ByStatus: make(map[core.EnrichmentStatus]int, len(core.ChunkStatuses))}
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, status := range []core.EnrichmentStatus{core.ChunkPending, core.ChunkProcessing, core.ChunkFailed} {
			n := 0
			err := forEachKey(tx, makeChunkStatusPrefix(status), func([]byte) (bool, error) {
				n++
				return true, nil
			})
			if err != nil {
				return err
			}
			stats.ByStatus[status] = n
		}

		versioned := []byte(chunkVersionPrefix)
		return forEachKey(tx, versioned, func(key []byte) (bool, error) {
			stats.ByStatus[core.ChunkCompleted]++
			if uint64At(key, len(versioned)) < targetVersion {
				stats.Stale++
			}
			return true, nil
		})
	})
	return stats, err
}

func readChunk(tx *badger.Txn, id core.ID, withVector bool) (*core.Chunk, error) {
	chunk, err := getValue(tx, makeChunkKey(id), storage.UnmarshalChunk)
	if err != nil {
		return nil, err
	}
	if !withVector {
		return chunk, nil
	}
	vector, err := getValue(tx, makeChunkVectorKey(id), func(val []byte) (*[]float32, error) {
		v, err := storage.UnmarshalVector(val)
		return &v, err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return chunk, nil
	}
	if err != nil {
		return nil, err
	}
	chunk.Vector = *vector
	return chunk, nil
}

func documentChunks(tx *badger.Txn, documentID core.ID) ([]*core.Chunk, error) {
	keys, err := scanKeys(tx, makeChunkDocPrefix(documentID), 0)
	if err != nil {
		return nil, err
	}
	chunks := make([]*core.Chunk, 0, len(keys))
	for _, key := range keys {
		item, err := tx.Get(key)
		if err != nil {
			return nil, err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		id, err := storage.UnmarshalID(val)
		if err != nil {
			return nil, err
		}
		chunk, err := readChunk(tx, id, true)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// claimedChunk loads a chunk and checks that workerID still holds its claim.
func claimedChunk(tx *badger.Txn, workerID string, id core.ID) (*core.Chunk, error) {
	chunk, err := readChunk(tx, id, false)
	if err != nil {
		return nil, err
	}
	if chunk.Status != core.ChunkProcessing || chunk.ClaimedBy != workerID {
		return nil, fmt.Errorf("%w: chunk %d is %s (claimed by %q)",
			storage.ErrClaimLost, id, chunk.Status, chunk.ClaimedBy)
	}
	return chunk, nil
}

// putChunk stores chunk and moves its index entry from old. The vector is
// written only when the chunk carries one.
func putChunk(tx *badger.Txn, old, chunk *core.Chunk) error {
	if old != nil {
		if err := tx.Delete(makeChunkIndexKey(old)); err != nil {
			return err
		}
	}
	if err := tx.Set(makeChunkKey(chunk.ID), storage.MarshalChunk(chunk)); err != nil {
		return err
	}
	if chunk.Vector != nil {
		if err := tx.Set(makeChunkVectorKey(chunk.ID), storage.MarshalVector(chunk.Vector)); err != nil {
			return err
		}
	}
	return tx.Set(makeChunkIndexKey(chunk), nil)
}
