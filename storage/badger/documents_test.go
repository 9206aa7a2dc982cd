package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// claimEvent appends an event and claims it.
func claimEvent(t *testing.T, repos *Repositories, itemID string, op core.Operation) *core.IngestionEvent {
	t.Helper()
	event := appendEvent(t, repos, itemID, op)
	claimed, err := repos.Events.ClaimNext(context.Background(), "parser", 1, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, event.ID, claimed[0].ID)
	return claimed[0]
}

func parseInto(t *testing.T, repos *Repositories, event *core.IngestionEvent, texts ...string) (*core.Document, bool) {
	t.Helper()
	doc := &core.Document{ID: core.DocumentIDFor(event.ItemID, event.ID), Source: event.SourceRef()}
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{Text: text}
	}
	created, err := repos.Documents.CommitParse(context.Background(), event, doc, chunks)
	require.NoError(t, err)
	return doc, created
}

func TestCommitParse(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	event := claimEvent(t, repos, "report.txt", core.OperationCreated)
	doc, created := parseInto(t, repos, event, "one", "two", "three")
	assert.True(t, created)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.txt", stored.ItemID)
	assert.Equal(t, event.ID, stored.EventID)
	assert.Equal(t, 3, stored.ChunkCount)
	assert.False(t, stored.Deleted)

	chunks, err := repos.Chunks.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Ordinal)
		assert.Equal(t, doc.ID, chunk.DocumentID)
		assert.Equal(t, core.ChunkPending, chunk.Status)
		assert.Zero(t, chunk.EmbeddingVersion)
		assert.Nil(t, chunk.Vector)
	}
	assert.Equal(t, "two", chunks[1].Text)

	stats, err := repos.Chunks.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ByStatus[core.ChunkPending])

	finished, err := repos.Events.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EventDone, finished.Status)
}

func TestCommitParse_Idempotent(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	event := claimEvent(t, repos, "report.txt", core.OperationCreated)
	doc, created := parseInto(t, repos, event, "one", "two")
	require.True(t, created)

	// A redelivery of the same event writes nothing new.
	_, created = parseInto(t, repos, event, "one", "two")
	assert.False(t, created)

	docs, err := repos.Documents.ListDocuments(ctx, "report.txt")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	chunks, err := repos.Chunks.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestCommitParse_RequiresClaim(t *testing.T) {
	repos := newTestRepos(t)

	event := appendEvent(t, repos, "report.txt", core.OperationCreated)
	doc := &core.Document{ID: core.DocumentIDFor(event.ItemID, event.ID)}
	_, err := repos.Documents.CommitParse(context.Background(), event, doc, nil)
	assert.ErrorIs(t, err, storage.ErrClaimLost)
}

func TestCommitParse_ChunkIDCollision(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	event := claimEvent(t, repos, "report.txt", core.OperationCreated)
	docID := core.DocumentIDFor(event.ItemID, event.ID)
	squatter := &core.Chunk{
		ID:         core.ChunkIDFor(docID, 1),
		DocumentID: core.ID(99),
		Text:       "already here",
		Status:     core.ChunkPending,
	}
	require.NoError(t, repos.Backend.Update(ctx, func(tx *badger.Txn) error {
		return putChunk(tx, nil, squatter)
	}))

	doc := &core.Document{ID: docID, Source: event.SourceRef()}
	_, err := repos.Documents.CommitParse(ctx, event, doc, []*core.Chunk{{Text: "one"}, {Text: "two"}})
	assert.ErrorIs(t, err, storage.ErrIDCollision)

	_, err = repos.Documents.GetDocument(ctx, docID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	kept, err := repos.Chunks.GetChunk(ctx, squatter.ID)
	require.NoError(t, err)
	assert.Equal(t, "already here", kept.Text)
}

func TestCommitParse_SupersedesPreviousVersion(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	first := claimEvent(t, repos, "report.txt", core.OperationCreated)
	oldDoc, _ := parseInto(t, repos, first, "old text")

	second := claimEvent(t, repos, "report.txt", core.OperationCreated)
	newDoc, _ := parseInto(t, repos, second, "new text")

	active, err := repos.Documents.GetActiveDocument(ctx, "report.txt")
	require.NoError(t, err)
	assert.Equal(t, newDoc.ID, active.ID)

	old, err := repos.Documents.GetDocument(ctx, oldDoc.ID)
	require.NoError(t, err)
	assert.True(t, old.Deleted)

	docs, err := repos.Documents.ListDocuments(ctx, "report.txt")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, oldDoc.ID, docs[0].ID)
	assert.Equal(t, newDoc.ID, docs[1].ID)
}

func TestCommitDelete(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	upload := claimEvent(t, repos, "report.txt", core.OperationCreated)
	doc, _ := parseInto(t, repos, upload, "text")

	deletion := claimEvent(t, repos, "report.txt", core.OperationDeleted)
	deleted, err := repos.Documents.CommitDelete(ctx, deletion)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, doc.ID, deleted.ID)
	assert.True(t, deleted.Deleted)
	assert.False(t, deleted.DeletedAt.IsZero())

	_, err = repos.Documents.GetActiveDocument(ctx, "report.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Chunks are kept but no longer searchable.
	chunks, err := repos.Chunks.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	searchable, err := repos.Chunks.SearchableChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, searchable)

	// Redelivery is a no-op.
	deleted, err = repos.Documents.CommitDelete(ctx, deletion)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestCommitDelete_NoActiveDocument(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	deletion := claimEvent(t, repos, "missing.txt", core.OperationDeleted)
	deleted, err := repos.Documents.CommitDelete(ctx, deletion)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	stored, err := repos.Events.GetEvent(ctx, deletion.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EventDone, stored.Status)
	assert.NotEmpty(t, stored.ErrorDetail)
}
