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


package mock

import (
	"sync"

	"github.com/poiesic/docflow/ai"
)

// MockProvider is a test double for ai.AIProvider.
// It creates one MockEmbedder per requested model and records the requests.
type MockProvider struct {
	mu        sync.Mutex
	embedders map[string]*MockEmbedder
	requested []string
	Err       error
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider creates a new mock provider.
//
// Use GetMockEmbedder to access the concrete embedders for test assertions.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedders: make(map[string]*MockEmbedder),
	}
}

// Embedder returns the mock embedder for model, creating it on first use.
// A positive dims switches the embedder's default vector size.
func (p *MockProvider) Embedder(model string, dims int) (ai.Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requested = append(p.requested, model)
	if p.Err != nil {
		return nil, p.Err
	}
	e, ok := p.embedders[model]
	if !ok {
		e = NewMockEmbedder(model)
		p.embedders[model] = e
	}
	if dims > 0 {
		e.SetDimensions(dims)
	}
	return e, nil
}

// GetMockEmbedder returns the embedder for model, creating it if needed, so
// tests can inject behavior before the code under test asks for it.
func (p *MockProvider) GetMockEmbedder(model string) *MockEmbedder {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.embedders[model]
	if !ok {
		e = NewMockEmbedder(model)
		p.embedders[model] = e
	}
	return e
}

// Requested returns every model passed to Embedder, in call order.
func (p *MockProvider) Requested() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requested...)
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}
