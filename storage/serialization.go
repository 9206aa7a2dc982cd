// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"errors"
	"fmt"

	"github.com/mus-format/mus-go"
	"github.com/poiesic/docflow/core"
)

// decodeError maps mus errors onto the storage sentinels.
func decodeError(what string, err error) error {
	if errors.Is(err, mus.ErrTooSmallByteSlice) {
		return fmt.Errorf("%w: %s: %w", ErrTruncatedData, what, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, err)
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, decodeError("id", err)
	}
	return id, nil
}

// MarshalEvent serializes an IngestionEvent to bytes.
func MarshalEvent(event *core.IngestionEvent) []byte {
	buf := make([]byte, core.IngestionEventMUS.Size(*event))
	core.IngestionEventMUS.Marshal(*event, buf)
	return buf
}

// UnmarshalEvent deserializes an IngestionEvent from bytes.
func UnmarshalEvent(data []byte) (*core.IngestionEvent, error) {
	event, _, err := core.IngestionEventMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("event", err)
	}
	return &event, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("document", err)
	}
	return &doc, nil
}

// MarshalChunk serializes a Chunk without its vector.
// Vectors are stored separately with MarshalVector.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes. The Vector field is left nil.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("chunk", err)
	}
	return &chunk, nil
}

// MarshalVector serializes an embedding vector.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, core.VectorMUS.Size(v))
	core.VectorMUS.Marshal(v, buf)
	return buf
}

// UnmarshalVector decodes a vector written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	v, _, err := core.VectorMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("vector", err)
	}
	return v, nil
}

// MarshalTarget serializes an EmbeddingTarget to bytes.
func MarshalTarget(target *core.EmbeddingTarget) []byte {
	buf := make([]byte, core.EmbeddingTargetMUS.Size(*target))
	core.EmbeddingTargetMUS.Marshal(*target, buf)
	return buf
}

// UnmarshalTarget deserializes an EmbeddingTarget from bytes.
func UnmarshalTarget(data []byte) (*core.EmbeddingTarget, error) {
	target, _, err := core.EmbeddingTargetMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("embedding target", err)
	}
	return &target, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	buf := make([]byte, core.CheckpointMUS.Size(*checkpoint))
	core.CheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := core.CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("checkpoint", err)
	}
	return &checkpoint, nil
}
