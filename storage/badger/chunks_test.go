package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocument(t *testing.T, repos *Repositories, itemID string, n int) *core.Document {
	t.Helper()
	event := claimEvent(t, repos, itemID, core.OperationCreated)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s chunk %d", itemID, i)
	}
	doc, created := parseInto(t, repos, event, texts...)
	require.True(t, created)
	return doc
}

func claim(t *testing.T, repos *Repositories, worker string, version uint64, limit int) []*core.Chunk {
	t.Helper()
	chunks, err := repos.Chunks.ClaimBatch(context.Background(), storage.ClaimRequest{
		WorkerID:      worker,
		TargetVersion: version,
		Limit:         limit,
	})
	require.NoError(t, err)
	return chunks
}

func TestClaimBatch_Validation(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Chunks.ClaimBatch(ctx, storage.ClaimRequest{WorkerID: "w", TargetVersion: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = repos.Chunks.ClaimBatch(ctx, storage.ClaimRequest{TargetVersion: 1, Limit: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = repos.Chunks.ClaimBatch(ctx, storage.ClaimRequest{WorkerID: "w", Limit: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestClaimBatch_PendingInBatches(t *testing.T) {
	repos := newTestRepos(t)
	seedDocument(t, repos, "a", 3)

	first := claim(t, repos, "w1", 1, 2)
	require.Len(t, first, 2)
	for _, c := range first {
		assert.Equal(t, core.ChunkProcessing, c.Status)
		assert.Equal(t, "w1", c.ClaimedBy)
	}

	second := claim(t, repos, "w2", 1, 2)
	require.Len(t, second, 1)
	assert.NotContains(t, []core.ID{first[0].ID, first[1].ID}, second[0].ID)

	assert.Empty(t, claim(t, repos, "w3", 1, 2))
}

func TestClaimBatch_ConcurrentWorkersNeverShareChunks(t *testing.T) {
	repos := newTestRepos(t)
	seedDocument(t, repos, "a", 12)
	seedDocument(t, repos, "b", 12)

	var mu sync.Mutex
	owner := make(map[core.ID]string)
	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				chunks, err := repos.Chunks.ClaimBatch(context.Background(), storage.ClaimRequest{
					WorkerID:      worker,
					TargetVersion: 1,
					Limit:         2,
				})
				if err != nil {
					errs <- err
					return
				}
				if len(chunks) == 0 {
					return
				}
				mu.Lock()
				for _, c := range chunks {
					if prev, ok := owner[c.ID]; ok {
						errs <- fmt.Errorf("chunk %d claimed by %s and %s", c.ID, prev, worker)
					}
					owner[c.ID] = worker
				}
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", w))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, owner, 24)
}

func TestCompleteChunk(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	doc := seedDocument(t, repos, "a", 2)

	claimed := claim(t, repos, "w", 1, 2)
	require.Len(t, claimed, 2)

	// Only the claim holder can write.
	err := repos.Chunks.CompleteChunk(ctx, "intruder", claimed[0].ID, []float32{1, 0}, 1, "m")
	assert.ErrorIs(t, err, storage.ErrClaimLost)

	err = repos.Chunks.CompleteChunk(ctx, "w", claimed[0].ID, []float32{1, 0}, 1, "m")
	require.NoError(t, err)

	// Invalid vectors are refused before touching the store.
	err = repos.Chunks.CompleteChunk(ctx, "w", claimed[1].ID, nil, 1, "m")
	assert.ErrorIs(t, err, core.ErrInvalidVector)

	stored, err := repos.Chunks.GetChunk(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.ChunkCompleted, stored.Status)
	assert.Equal(t, uint64(1), stored.EmbeddingVersion)
	assert.Equal(t, "m", stored.EmbeddingModel)
	assert.Equal(t, []float32{1, 0}, stored.Vector)
	assert.Empty(t, stored.ClaimedBy)

	// Completing again after the claim is gone fails.
	err = repos.Chunks.CompleteChunk(ctx, "w", claimed[0].ID, []float32{1, 0}, 1, "m")
	assert.ErrorIs(t, err, storage.ErrClaimLost)

	searchable, err := repos.Chunks.SearchableChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, searchable, 1)
	assert.Equal(t, claimed[0].ID, searchable[0].ID)
}

func TestCompleteChunk_VersionNeverDecreases(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedDocument(t, repos, "a", 1)

	claimed := claim(t, repos, "w", 2, 1)
	require.Len(t, claimed, 1)
	require.NoError(t, repos.Chunks.CompleteChunk(ctx, "w", claimed[0].ID, []float32{1}, 2, "m"))

	claimed = claim(t, repos, "late", 3, 1)
	require.Len(t, claimed, 1)
	err := repos.Chunks.CompleteChunk(ctx, "late", claimed[0].ID, []float32{1}, 1, "old")
	assert.ErrorIs(t, err, storage.ErrStaleVersion)

	stored, err := repos.Chunks.GetChunk(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stored.EmbeddingVersion)
}

func TestClaimBatch_StaleVersions(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedDocument(t, repos, "a", 2)

	for _, c := range claim(t, repos, "w", 1, 2) {
		require.NoError(t, repos.Chunks.CompleteChunk(ctx, "w", c.ID, []float32{1, 0}, 1, "m"))
	}
	assert.Empty(t, claim(t, repos, "w", 1, 10), "everything is current")

	stats, err := repos.Chunks.Stats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus[core.ChunkCompleted])
	assert.Equal(t, 2, stats.Stale)

	stale := claim(t, repos, "w", 2, 10)
	assert.Len(t, stale, 2)
}

func TestClaimBatch_ReclaimsAbandonedChunks(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedDocument(t, repos, "a", 1)

	claimed := claim(t, repos, "crashed", 1, 1)
	require.Len(t, claimed, 1)

	req := storage.ClaimRequest{WorkerID: "w2", TargetVersion: 1, Limit: 1, StaleAfter: time.Minute}
	fresh, err := repos.Chunks.ClaimBatch(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	req.Now = time.Now().Add(2 * time.Minute)
	reclaimed, err := repos.Chunks.ClaimBatch(ctx, req)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, claimed[0].ID, reclaimed[0].ID)
	assert.Equal(t, "w2", reclaimed[0].ClaimedBy)

	// The crashed worker's late write is rejected.
	err = repos.Chunks.CompleteChunk(ctx, "crashed", claimed[0].ID, []float32{1}, 1, "m")
	assert.ErrorIs(t, err, storage.ErrClaimLost)
}

func TestClaimBatch_Since(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedDocument(t, repos, "old", 2)
	cutover := time.Now().UTC()
	time.Sleep(2 * time.Millisecond)
	seedDocument(t, repos, "new", 2)

	chunks, err := repos.Chunks.ClaimBatch(ctx, storage.ClaimRequest{
		WorkerID:      "inline",
		TargetVersion: 1,
		Limit:         10,
		Since:         cutover,
	})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Contains(t, c.Text, "new")
	}
}

func TestFailAndRequeue(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	seedDocument(t, repos, "a", 1)

	for attempt := 1; attempt <= 2; attempt++ {
		claimed := claim(t, repos, "w", 1, 1)
		require.Len(t, claimed, 1)
		require.NoError(t, repos.Chunks.FailChunk(ctx, "w", claimed[0].ID, "backend said no"))

		stored, err := repos.Chunks.GetChunk(ctx, claimed[0].ID)
		require.NoError(t, err)
		assert.Equal(t, core.ChunkFailed, stored.Status)
		assert.Equal(t, attempt, stored.AttemptCount)
		assert.Equal(t, "backend said no", stored.LastError)

		// Failed chunks are not claimable until requeued.
		assert.Empty(t, claim(t, repos, "w", 1, 1))

		requeued, exhausted, err := repos.Chunks.RequeueFailed(ctx, 2)
		require.NoError(t, err)
		if attempt < 2 {
			assert.Equal(t, 1, requeued)
			assert.Zero(t, exhausted)
		} else {
			assert.Zero(t, requeued)
			assert.Equal(t, 1, exhausted)
		}
	}

	assert.Empty(t, claim(t, repos, "w", 1, 1), "exhausted chunks stay failed")
}

func TestReleaseChunks(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	doc := seedDocument(t, repos, "a", 2)

	claimed := claim(t, repos, "w", 1, 2)
	require.Len(t, claimed, 2)
	require.NoError(t, repos.Chunks.CompleteChunk(ctx, "w", claimed[0].ID, []float32{1}, 1, "m"))

	// Re-embedding at version 2 is rate limited and handed back.
	restale := claim(t, repos, "w", 2, 1)
	require.Len(t, restale, 1)
	require.NoError(t, repos.Chunks.ReleaseChunks(ctx, "w", claimed[1].ID, restale[0].ID))

	pending, err := repos.Chunks.GetChunk(ctx, claimed[1].ID)
	require.NoError(t, err)
	assert.Equal(t, core.ChunkPending, pending.Status)
	assert.Zero(t, pending.AttemptCount)

	kept, err := repos.Chunks.GetChunk(ctx, restale[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.ChunkCompleted, kept.Status)
	assert.Equal(t, uint64(1), kept.EmbeddingVersion)
	assert.Equal(t, []float32{1}, kept.Vector)

	searchable, err := repos.Chunks.SearchableChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, searchable, 1)
}

func TestFindSimilar(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	results, err := repos.Chunks.FindSimilar(ctx, []float32{1, 0}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	seedDocument(t, repos, "keep", 1)
	seedDocument(t, repos, "drop", 1)

	vectors := map[string][]float32{
		"keep chunk 0": {1, 0},
		"drop chunk 0": {0.8, 0.6},
	}
	for _, c := range claim(t, repos, "w", 1, 10) {
		require.NoError(t, repos.Chunks.CompleteChunk(ctx, "w", c.ID, vectors[c.Text], 1, "m"))
	}

	results, err = repos.Chunks.FindSimilar(ctx, []float32{1, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "keep chunk 0", results[0].Chunk.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// Vectors of another dimensionality are ignored.
	results, err = repos.Chunks.FindSimilar(ctx, []float32{1, 0, 0}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	deletion := claimEvent(t, repos, "drop", core.OperationDeleted)
	_, err = repos.Documents.CommitDelete(ctx, deletion)
	require.NoError(t, err)

	results, err = repos.Chunks.FindSimilar(ctx, []float32{1, 0}, 0, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep chunk 0", results[0].Chunk.Text)
}
