package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

type ID uint64

func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentIDFor derives the document ID for one (item, event) pair.
// Reprocessing the same event always lands on the same key.
func DocumentIDFor(itemID string, eventID ID) ID {
	return IDFromContent(itemID + "\x00" + strconv.FormatUint(uint64(eventID), 10))
}

// ChunkIDFor derives the chunk ID from its document and position.
func ChunkIDFor(documentID ID, ordinal int) ID {
	return IDFromContent(strconv.FormatUint(uint64(documentID), 10) + ":" + strconv.Itoa(ordinal))
}

type Operation string

const (
	OperationCreated Operation = "created"
	OperationDeleted Operation = "deleted"
)

type EventStatus string

const (
	EventNew        EventStatus = "new"
	EventProcessing EventStatus = "processing"
	EventDone       EventStatus = "done"
	EventFailed     EventStatus = "failed"
)

// EventStatuses lists every event status in lifecycle order.
var EventStatuses = []EventStatus{EventNew, EventProcessing, EventDone, EventFailed}

type EnrichmentStatus string

const (
	ChunkPending    EnrichmentStatus = "pending"
	ChunkProcessing EnrichmentStatus = "processing"
	ChunkCompleted  EnrichmentStatus = "completed"
	ChunkFailed     EnrichmentStatus = "failed"
)

// ChunkStatuses lists every enrichment status in lifecycle order.
var ChunkStatuses = []EnrichmentStatus{ChunkPending, ChunkProcessing, ChunkCompleted, ChunkFailed}

// IngestionEvent is one upload or deletion signal.
type IngestionEvent struct {
	ID          ID
	ItemID      string
	Operation   Operation
	Status      EventStatus
	Source      string    // Blob store reference, defaults to ItemID
	CreatedAt   time.Time // When the event was appended
	UpdatedAt   time.Time
	ClaimedAt   time.Time // Zero unless processing
	ClaimedBy   string
	Attempts    int
	ErrorDetail string
}

// SourceRef returns the blob reference to fetch for this event.
func (e *IngestionEvent) SourceRef() string {
	if e.Source != "" {
		return e.Source
	}
	return e.ItemID
}

// Document is one parsed version of an uploaded item.
type Document struct {
	ID         ID
	ItemID     string
	EventID    ID
	Source     string
	ChunkCount int
	Deleted    bool
	DeletedAt  time.Time
	CreatedAt  time.Time
}

// Chunk is an ordered text unit owned by one Document.
type Chunk struct {
	ID               ID
	DocumentID       ID
	Ordinal          int
	Text             string
	Vector           []float32 // nil until enriched
	EmbeddingVersion uint64
	EmbeddingModel   string
	Status           EnrichmentStatus
	ClaimedAt        time.Time
	ClaimedBy        string
	AttemptCount     int
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EmbeddingTarget is the persisted embedding configuration every enrichment
// cycle works towards.
type EmbeddingTarget struct {
	Model      string
	Version    uint64
	Dimensions int
	UpdatedAt  time.Time
}

// Checkpoint records the outcome of a worker's most recent cycle.
type Checkpoint struct {
	Worker    string
	LastRunAt time.Time
	Claimed   int
	Completed int
	Failed    int
	Released  int
	Exhausted int
	UpdatedAt time.Time
}

type SearchResult struct {
	Chunk *Chunk
	Score float32
}

// ChunkStats counts chunks per enrichment status.
type ChunkStats struct {
	ByStatus map[EnrichmentStatus]int
	Stale    int // completed below the target version
}
