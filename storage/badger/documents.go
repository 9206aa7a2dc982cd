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

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{
		backend: backend,
	}
}

// CommitParse writes a parsed document with its chunks and completes event.
// Chunk IDs, ownership and enrichment state are assigned here.
func (r *DocumentRepository) CommitParse(ctx context.Context, event *core.IngestionEvent, doc *core.Document, chunks []*core.Chunk) (bool, error) {
	var created bool
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		created = false
		now := time.Now().UTC()

		if _, err := readDocument(tx, doc.ID); err == nil {
			// Written by an earlier delivery of this event.
			_, err := finishEvent(tx, event.ID, core.EventDone, "")
			return err
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		stored, err := readEvent(tx, event.ID)
		if err != nil {
			return err
		}
		if stored.Status != core.EventProcessing {
			return fmt.Errorf("%w: event %d is %s", storage.ErrClaimLost, event.ID, stored.Status)
		}

		doc.ItemID = event.ItemID
		doc.EventID = event.ID
		doc.ChunkCount = len(chunks)
		doc.CreatedAt = now
		doc.Deleted = false
		doc.DeletedAt = time.Time{}

		prior, err := activeDocument(tx, event.ItemID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		switch {
		case prior == nil:
			if err := tx.Set(makeActiveDocumentKey(doc.ItemID), storage.MarshalID(doc.ID)); err != nil {
				return err
			}
		case prior.EventID > event.ID:
			// A newer upload is already active; this version is superseded on arrival.
			doc.Deleted = true
			doc.DeletedAt = now
		default:
			prior.Deleted = true
			prior.DeletedAt = now
			if err := putDocument(tx, prior); err != nil {
				return err
			}
			if err := tx.Set(makeActiveDocumentKey(doc.ItemID), storage.MarshalID(doc.ID)); err != nil {
				return err
			}
		}

		if err := putDocument(tx, doc); err != nil {
			return err
		}
		if err := tx.Set(makeDocumentItemKey(doc.ItemID, doc.ID), nil); err != nil {
			return err
		}

		for ordinal, chunk := range chunks {
			chunk.ID = core.ChunkIDFor(doc.ID, ordinal)
			chunk.DocumentID = doc.ID
			chunk.Ordinal = ordinal
			chunk.Vector = nil
			chunk.EmbeddingVersion = 0
			chunk.EmbeddingModel = ""
			chunk.Status = core.ChunkPending
			chunk.ClaimedAt = time.Time{}
			chunk.ClaimedBy = ""
			chunk.AttemptCount = 0
			chunk.LastError = ""
			chunk.CreatedAt = now
			chunk.UpdatedAt = now
			if _, err := tx.Get(makeChunkKey(chunk.ID)); err == nil {
				return fmt.Errorf("%w: chunk %d of document %d", storage.ErrIDCollision, ordinal, doc.ID)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := putChunk(tx, nil, chunk); err != nil {
				return err
			}
			if err := tx.Set(makeChunkDocKey(doc.ID, ordinal), storage.MarshalID(chunk.ID)); err != nil {
				return err
			}
		}

		if _, err := finishEvent(tx, event.ID, core.EventDone, ""); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// CommitDelete soft-deletes the item's active document and completes event.
func (r *DocumentRepository) CommitDelete(ctx context.Context, event *core.IngestionEvent) (*core.Document, error) {
	var deleted *core.Document
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		deleted = nil

		stored, err := readEvent(tx, event.ID)
		if err != nil {
			return err
		}
		if stored.Status == core.EventDone {
			return nil
		}

		doc, err := activeDocument(tx, event.ItemID)
		if errors.Is(err, storage.ErrNotFound) {
			_, err := finishEvent(tx, event.ID, core.EventDone, "no active document for item")
			return err
		}
		if err != nil {
			return err
		}

		doc.Deleted = true
		doc.DeletedAt = time.Now().UTC()
		if err := putDocument(tx, doc); err != nil {
			return err
		}
		if err := tx.Delete(makeActiveDocumentKey(doc.ItemID)); err != nil {
			return err
		}
		if _, err := finishEvent(tx, event.ID, core.EventDone, ""); err != nil {
			return err
		}
		deleted = doc
		return nil
	})
	return deleted, err
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	})
	return doc, err
}

// GetActiveDocument returns the item's non-deleted document.
func (r *DocumentRepository) GetActiveDocument(ctx context.Context, itemID string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = activeDocument(tx, itemID)
		return err
	})
	return doc, err
}

// ListDocuments returns every document version for the item, oldest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context, itemID string) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		keys, err := scanKeys(tx, makeDocumentItemPrefix(itemID), 0)
		if err != nil {
			return err
		}
		for _, key := range keys {
			doc, err := readDocument(tx, idAt(key))
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.EventID < b.EventID {
			return -1
		}
		if a.EventID > b.EventID {
			return 1
		}
		return 0
	})
	return docs, nil
}

func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	return getValue(tx, makeDocumentKey(id), storage.UnmarshalDocument)
}

func activeDocument(tx *badger.Txn, itemID string) (*core.Document, error) {
	id, err := getValue(tx, makeActiveDocumentKey(itemID), func(val []byte) (*core.ID, error) {
		id, err := storage.UnmarshalID(val)
		return &id, err
	})
	if err != nil {
		return nil, err
	}
	return readDocument(tx, *id)
}

func putDocument(tx *badger.Txn, doc *core.Document) error {
	return tx.Set(makeDocumentKey(doc.ID), storage.MarshalDocument(doc))
}
