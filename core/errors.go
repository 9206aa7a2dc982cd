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


package core

import "errors"

var (
	// ErrInvalidEvent indicates an IngestionEvent failed validation.
	ErrInvalidEvent = errors.New("invalid ingestion event")

	// ErrInvalidOperation indicates an unknown event operation.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrEmptyItemID indicates the ItemID field is empty.
	ErrEmptyItemID = errors.New("item id cannot be empty")

	// ErrInvalidTarget indicates an EmbeddingTarget failed validation.
	ErrInvalidTarget = errors.New("invalid embedding target")

	// ErrInvalidVector indicates an embedding vector is empty or not finite.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrDimensionMismatch indicates a vector has the wrong number of dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
