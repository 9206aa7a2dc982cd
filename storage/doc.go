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


// Package storage provides the storage abstraction layer for docflow.
//
// This package defines repository interfaces that decouple the ingestion and
// enrichment pipeline from the storage implementation:
//
//   - EventLog: the ingestion event log and its claim lifecycle
//   - DocumentRepository: documents, written together with their chunks
//   - ChunkRepository: the chunk table, enrichment claims and the search read path
//   - SettingsRepository: the persisted embedding target
//   - CheckpointRepository: last cycle summary per worker
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return these interfaces:
//
//	events, err := badger.NewEventLog(backend)  // returns storage.EventLog
//
// # Claims
//
// All coordination between workers happens through claim transitions in the
// store. A claim is persisted state (status processing, ClaimedAt, ClaimedBy),
// never an in-memory lock, so a crashed worker only delays its records until
// the staleness timeout makes them claimable again.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
