package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/docflow/core"
)

// Key prefixes for different data types
const (
	eventPrefix         = "evt:"
	eventStatusPrefix   = "evtq:"
	eventItemLockPrefix = "evtlock:"
	eventIDSeq          = "evtseq"
	documentPrefix      = "doc:"
	documentItemPrefix  = "docitem:"
	activeDocPrefix     = "docact:"
	chunkPrefix         = "chk:"
	chunkVectorPrefix   = "chkvec:"
	chunkDocPrefix      = "chkdoc:"
	chunkStatusPrefix   = "chkst:"
	chunkVersionPrefix  = "chkver:"
	embeddingTargetKey  = "cfg:embedding"
	checkpointPrefix    = "ckpt:"
)

var eventStatusBytes = map[core.EventStatus]byte{
	core.EventNew:        1,
	core.EventProcessing: 2,
	core.EventDone:       3,
	core.EventFailed:     4,
}

var chunkStatusBytes = map[core.EnrichmentStatus]byte{
	core.ChunkPending:    1,
	core.ChunkProcessing: 2,
	core.ChunkCompleted:  3,
	core.ChunkFailed:     4,
}

// appendUint64 writes v in BigEndian order so lexicographic sort works correctly.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// micros converts a timestamp for use in sortable keys. Times before the
// epoch sort first.
func micros(ts time.Time) uint64 {
	m := ts.UnixMicro()
	if m < 0 {
		return 0
	}
	return uint64(m)
}

// idAt returns the ID stored in the last 8 bytes of a composite key.
func idAt(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// uint64At reads a BigEndian uint64 at offset.
func uint64At(key []byte, offset int) uint64 {
	return binary.BigEndian.Uint64(key[offset : offset+8])
}

func makeEventKey(id core.ID) []byte {
	return appendUint64([]byte(eventPrefix), uint64(id))
}

// makeEventStatusPrefix generates the partial key for one status.
// Format: prefix:status
func makeEventStatusPrefix(status core.EventStatus) []byte {
	return append([]byte(eventStatusPrefix), eventStatusBytes[status])
}

// makeEventStatusKey generates the status index key for an event. Processing
// events sort by claim time, the others by creation time.
// Format: prefix:status:timestamp:id
func makeEventStatusKey(event *core.IngestionEvent) []byte {
	ts := event.CreatedAt
	if event.Status == core.EventProcessing {
		ts = event.ClaimedAt
	}
	buf := makeEventStatusPrefix(event.Status)
	buf = appendUint64(buf, micros(ts))
	return appendUint64(buf, uint64(event.ID))
}

func makeEventItemLockKey(itemID string) []byte {
	return []byte(eventItemLockPrefix + itemID)
}

func makeDocumentKey(id core.ID) []byte {
	return appendUint64([]byte(documentPrefix), uint64(id))
}

// makeDocumentItemPrefix generates the partial key listing an item's documents.
// Format: prefix:itemID\x00
func makeDocumentItemPrefix(itemID string) []byte {
	return []byte(documentItemPrefix + itemID + "\x00")
}

// makeDocumentItemKey generates the per-item document history key.
// Format: prefix:itemID\x00:id
func makeDocumentItemKey(itemID string, id core.ID) []byte {
	return appendUint64(makeDocumentItemPrefix(itemID), uint64(id))
}

func makeActiveDocumentKey(itemID string) []byte {
	return []byte(activeDocPrefix + itemID)
}

func makeChunkKey(id core.ID) []byte {
	return appendUint64([]byte(chunkPrefix), uint64(id))
}

func makeChunkVectorKey(id core.ID) []byte {
	return appendUint64([]byte(chunkVectorPrefix), uint64(id))
}

// makeChunkDocPrefix generates the partial key for a document's chunks.
// Format: prefix:documentID
func makeChunkDocPrefix(documentID core.ID) []byte {
	return appendUint64([]byte(chunkDocPrefix), uint64(documentID))
}

// makeChunkDocKey generates the ordinal index key.
// Format: prefix:documentID:ordinal
func makeChunkDocKey(documentID core.ID, ordinal int) []byte {
	return appendUint64(makeChunkDocPrefix(documentID), uint64(ordinal))
}

// makeChunkStatusPrefix generates the partial key for one status.
// Format: prefix:status
func makeChunkStatusPrefix(status core.EnrichmentStatus) []byte {
	return append([]byte(chunkStatusPrefix), chunkStatusBytes[status])
}

// makeChunkIndexKey generates the index key a chunk is listed under.
// Completed chunks are indexed by version so stale ones can be found without
// scanning current ones; every other status is indexed by update time.
// Formats: chkver:version:updatedAt:id, chkst:status:updatedAt:id
func makeChunkIndexKey(chunk *core.Chunk) []byte {
	var buf []byte
	if chunk.Status == core.ChunkCompleted {
		buf = appendUint64([]byte(chunkVersionPrefix), chunk.EmbeddingVersion)
	} else {
		buf = makeChunkStatusPrefix(chunk.Status)
	}
	buf = appendUint64(buf, micros(chunk.UpdatedAt))
	return appendUint64(buf, uint64(chunk.ID))
}

func makeCheckpointKey(worker string) []byte {
	return []byte(checkpointPrefix + worker)
}
