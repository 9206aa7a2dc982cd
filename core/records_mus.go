package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted records. Field order is the wire format:
// append new fields at the end.
var (
	IDMUS              = idMUS{}
	TimeMUS            = timeMUS{}
	VectorMUS          = ord.NewSliceSer[float32](raw.Float32)
	IngestionEventMUS  = ingestionEventMUS{}
	DocumentMUS        = documentMUS{}
	ChunkMUS           = chunkMUS{}
	EmbeddingTargetMUS = embeddingTargetMUS{}
	CheckpointMUS      = checkpointMUS{}
)

var (
	_ mus.Serializer[ID]              = IDMUS
	_ mus.Serializer[time.Time]       = TimeMUS
	_ mus.Serializer[[]float32]       = VectorMUS
	_ mus.Serializer[IngestionEvent]  = IngestionEventMUS
	_ mus.Serializer[Document]        = DocumentMUS
	_ mus.Serializer[Chunk]           = ChunkMUS
	_ mus.Serializer[EmbeddingTarget] = EmbeddingTargetMUS
	_ mus.Serializer[Checkpoint]      = CheckpointMUS
)

// decoder reads consecutive fields and keeps the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func decode[T any](d *decoder, ser mus.Serializer[T]) (v T) {
	if d.err != nil {
		return
	}
	var n int
	v, n, d.err = ser.Unmarshal(d.bs[d.n:])
	d.n += n
	return
}

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (s idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeMUS stores seconds and nanoseconds separately so every time.Time,
// including the zero value, round-trips exactly. Decoded times are UTC.
type timeMUS struct{}

func (s timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	n = varint.Int64.Marshal(v.Unix(), bs)
	return n + varint.Int32.Marshal(int32(v.Nanosecond()), bs[n:])
}

func (s timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	sec, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return
	}
	nsec, n1, err := varint.Int32.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	return time.Unix(sec, int64(nsec)).UTC(), n, nil
}

func (s timeMUS) Size(v time.Time) int {
	return varint.Int64.Size(v.Unix()) + varint.Int32.Size(int32(v.Nanosecond()))
}

func (s timeMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type ingestionEventMUS struct{}

func (s ingestionEventMUS) Marshal(v IngestionEvent, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.ItemID, bs[n:])
	n += ord.String.Marshal(string(v.Operation), bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.Source, bs[n:])
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	n += TimeMUS.Marshal(v.ClaimedAt, bs[n:])
	n += ord.String.Marshal(v.ClaimedBy, bs[n:])
	n += varint.Int.Marshal(v.Attempts, bs[n:])
	return n + ord.String.Marshal(v.ErrorDetail, bs[n:])
}

func (s ingestionEventMUS) Unmarshal(bs []byte) (v IngestionEvent, n int, err error) {
	d := &decoder{bs: bs}
	v.ID = decode[ID](d, IDMUS)
	v.ItemID = decode[string](d, ord.String)
	v.Operation = Operation(decode[string](d, ord.String))
	v.Status = EventStatus(decode[string](d, ord.String))
	v.Source = decode[string](d, ord.String)
	v.CreatedAt = decode[time.Time](d, TimeMUS)
	v.UpdatedAt = decode[time.Time](d, TimeMUS)
	v.ClaimedAt = decode[time.Time](d, TimeMUS)
	v.ClaimedBy = decode[string](d, ord.String)
	v.Attempts = decode[int](d, varint.Int)
	v.ErrorDetail = decode[string](d, ord.String)
	return v, d.n, d.err
}

func (s ingestionEventMUS) Size(v IngestionEvent) (size int) {
	size = IDMUS.Size(v.ID)
	size += ord.String.Size(v.ItemID)
	size += ord.String.Size(string(v.Operation))
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.Source)
	size += TimeMUS.Size(v.CreatedAt)
	size += TimeMUS.Size(v.UpdatedAt)
	size += TimeMUS.Size(v.ClaimedAt)
	size += ord.String.Size(v.ClaimedBy)
	size += varint.Int.Size(v.Attempts)
	return size + ord.String.Size(v.ErrorDetail)
}

func (s ingestionEventMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type documentMUS struct{}

func (s documentMUS) Marshal(v Document, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.ItemID, bs[n:])
	n += IDMUS.Marshal(v.EventID, bs[n:])
	n += ord.String.Marshal(v.Source, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += ord.Bool.Marshal(v.Deleted, bs[n:])
	n += TimeMUS.Marshal(v.DeletedAt, bs[n:])
	return n + TimeMUS.Marshal(v.CreatedAt, bs[n:])
}

func (s documentMUS) Unmarshal(bs []byte) (v Document, n int, err error) {
	d := &decoder{bs: bs}
	v.ID = decode[ID](d, IDMUS)
	v.ItemID = decode[string](d, ord.String)
	v.EventID = decode[ID](d, IDMUS)
	v.Source = decode[string](d, ord.String)
	v.ChunkCount = decode[int](d, varint.Int)
	v.Deleted = decode[bool](d, ord.Bool)
	v.DeletedAt = decode[time.Time](d, TimeMUS)
	v.CreatedAt = decode[time.Time](d, TimeMUS)
	return v, d.n, d.err
}

func (s documentMUS) Size(v Document) (size int) {
	size = IDMUS.Size(v.ID)
	size += ord.String.Size(v.ItemID)
	size += IDMUS.Size(v.EventID)
	size += ord.String.Size(v.Source)
	size += varint.Int.Size(v.ChunkCount)
	size += ord.Bool.Size(v.Deleted)
	size += TimeMUS.Size(v.DeletedAt)
	return size + TimeMUS.Size(v.CreatedAt)
}

func (s documentMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// chunkMUS leaves out Vector; vectors live under their own key and are
// written with VectorMUS.
type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += IDMUS.Marshal(v.DocumentID, bs[n:])
	n += varint.Int.Marshal(v.Ordinal, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Uint64.Marshal(v.EmbeddingVersion, bs[n:])
	n += ord.String.Marshal(v.EmbeddingModel, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += TimeMUS.Marshal(v.ClaimedAt, bs[n:])
	n += ord.String.Marshal(v.ClaimedBy, bs[n:])
	n += varint.Int.Marshal(v.AttemptCount, bs[n:])
	n += ord.String.Marshal(v.LastError, bs[n:])
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	return n + TimeMUS.Marshal(v.UpdatedAt, bs[n:])
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	d := &decoder{bs: bs}
	v.ID = decode[ID](d, IDMUS)
	v.DocumentID = decode[ID](d, IDMUS)
	v.Ordinal = decode[int](d, varint.Int)
	v.Text = decode[string](d, ord.String)
	v.EmbeddingVersion = decode[uint64](d, varint.Uint64)
	v.EmbeddingModel = decode[string](d, ord.String)
	v.Status = EnrichmentStatus(decode[string](d, ord.String))
	v.ClaimedAt = decode[time.Time](d, TimeMUS)
	v.ClaimedBy = decode[string](d, ord.String)
	v.AttemptCount = decode[int](d, varint.Int)
	v.LastError = decode[string](d, ord.String)
	v.CreatedAt = decode[time.Time](d, TimeMUS)
	v.UpdatedAt = decode[time.Time](d, TimeMUS)
	return v, d.n, d.err
}

func (s chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.ID)
	size += IDMUS.Size(v.DocumentID)
	size += varint.Int.Size(v.Ordinal)
	size += ord.String.Size(v.Text)
	size += varint.Uint64.Size(v.EmbeddingVersion)
	size += ord.String.Size(v.EmbeddingModel)
	size += ord.String.Size(string(v.Status))
	size += TimeMUS.Size(v.ClaimedAt)
	size += ord.String.Size(v.ClaimedBy)
	size += varint.Int.Size(v.AttemptCount)
	size += ord.String.Size(v.LastError)
	size += TimeMUS.Size(v.CreatedAt)
	return size + TimeMUS.Size(v.UpdatedAt)
}

func (s chunkMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type embeddingTargetMUS struct{}

func (s embeddingTargetMUS) Marshal(v EmbeddingTarget, bs []byte) (n int) {
	n = ord.String.Marshal(v.Model, bs)
	n += varint.Uint64.Marshal(v.Version, bs[n:])
	n += varint.Int.Marshal(v.Dimensions, bs[n:])
	return n + TimeMUS.Marshal(v.UpdatedAt, bs[n:])
}

func (s embeddingTargetMUS) Unmarshal(bs []byte) (v EmbeddingTarget, n int, err error) {
	d := &decoder{bs: bs}
	v.Model = decode[string](d, ord.String)
	v.Version = decode[uint64](d, varint.Uint64)
	v.Dimensions = decode[int](d, varint.Int)
	v.UpdatedAt = decode[time.Time](d, TimeMUS)
	return v, d.n, d.err
}

func (s embeddingTargetMUS) Size(v EmbeddingTarget) (size int) {
	size = ord.String.Size(v.Model)
	size += varint.Uint64.Size(v.Version)
	size += varint.Int.Size(v.Dimensions)
	return size + TimeMUS.Size(v.UpdatedAt)
}

func (s embeddingTargetMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type checkpointMUS struct{}

func (s checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.Worker, bs)
	n += TimeMUS.Marshal(v.LastRunAt, bs[n:])
	n += varint.Int.Marshal(v.Claimed, bs[n:])
	n += varint.Int.Marshal(v.Completed, bs[n:])
	n += varint.Int.Marshal(v.Failed, bs[n:])
	n += varint.Int.Marshal(v.Released, bs[n:])
	n += varint.Int.Marshal(v.Exhausted, bs[n:])
	return n + TimeMUS.Marshal(v.UpdatedAt, bs[n:])
}

func (s checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	d := &decoder{bs: bs}
	v.Worker = decode[string](d, ord.String)
	v.LastRunAt = decode[time.Time](d, TimeMUS)
	v.Claimed = decode[int](d, varint.Int)
	v.Completed = decode[int](d, varint.Int)
	v.Failed = decode[int](d, varint.Int)
	v.Released = decode[int](d, varint.Int)
	v.Exhausted = decode[int](d, varint.Int)
	v.UpdatedAt = decode[time.Time](d, TimeMUS)
	return v, d.n, d.err
}

func (s checkpointMUS) Size(v Checkpoint) (size int) {
	size = ord.String.Size(v.Worker)
	size += TimeMUS.Size(v.LastRunAt)
	size += varint.Int.Size(v.Claimed)
	size += varint.Int.Size(v.Completed)
	size += varint.Int.Size(v.Failed)
	size += varint.Int.Size(v.Released)
	size += varint.Int.Size(v.Exhausted)
	return size + TimeMUS.Size(v.UpdatedAt)
}

func (s checkpointMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
