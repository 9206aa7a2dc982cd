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


package openai

import (
	"github.com/poiesic/docflow/ai"
)

// NewProvider creates an ai.Provider that builds one OpenAI-compatible
// embedder per requested model. The config is validated and normalized
// before use.
func NewProvider(config *ai.Config) (*ai.Provider, error) {
	if config.Backend == "" {
		config.Backend = ai.BackendOpenAI
	}
	return ai.NewProvider(config, NewEmbedder)
}
