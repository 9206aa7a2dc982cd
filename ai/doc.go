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


// Package ai provides the embedding abstraction used by docflow enrichment.
//
// Enrichment depends on two interfaces defined here:
//
//   - Embedder: turns a batch of texts into vectors and reports the model
//     that produced them
//   - AIProvider: hands out the embedder for a model, so workers can follow
//     the persisted embedding target without restarting
//
// # Implementation Packages
//
//   - ai/local: in-process feature hashing model, no network
//   - ai/openai: OpenAI-compatible HTTP API via github.com/sashabaranov/go-openai
//   - ai/langchain: OpenAI-compatible HTTP API via langchaingo
//   - ai/mock: test doubles
//
// # Errors
//
// Backends classify failures with the sentinels in this package.
// ErrRateLimited and ErrTransient are retryable; ErrBackend is not. Failures
// limited to individual texts are reported in Result.Failed instead of as an
// error, so a batch can commit partially.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithBackend(ai.BackendOpenAI), ai.WithEmbeddingModel("embeddinggemma"))
//	provider, err := ai.NewProvider(cfg, openai.NewEmbedder)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder, err := provider.Embedder("", 0)
//	result, err := embedder.Embed(ctx, []string{"hello world"})
package ai
