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


// Package search answers similarity queries over enriched chunks.
//
// The Searcher embeds the query with the model named by the current embedding
// target, scores it against every completed chunk of a live document and
// boosts chunks that contain all of the query's keywords verbatim.
// Chunks of deleted documents and chunks still waiting for an embedding are
// never returned.
package search
