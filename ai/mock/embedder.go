package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/docflow/ai"
)

// DefaultDimensions is the vector size of the default mock behavior.
const DefaultDimensions = 16

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedFunc is called by Embed if set.
	// If nil, uses default deterministic behavior.
	EmbedFunc func(ctx context.Context, texts []string) (*ai.Result, error)

	// ModelName is returned by Model and stamped on default results.
	ModelName string

	mu        sync.Mutex
	dims      int
	callCount int
	texts     [][]string
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder(model string) *MockEmbedder {
	return &MockEmbedder{ModelName: model, dims: DefaultDimensions}
}

// SetDimensions changes the size of default vectors.
func (m *MockEmbedder) SetDimensions(dims int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dims = dims
}

// Dimensions returns the size of default vectors.
func (m *MockEmbedder) Dimensions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dims
}

// Embed generates deterministic embeddings for texts.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) (*ai.Result, error) {
	m.mu.Lock()
	m.callCount++
	m.texts = append(m.texts, append([]string(nil), texts...))
	fn := m.EmbedFunc
	dims := m.dims
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	result := ai.NewResult(m.ModelName, len(texts))
	for i, text := range texts {
		result.Vectors[i] = GenerateDeterministicVector(text, dims)
	}
	return result, nil
}

// Model returns ModelName.
func (m *MockEmbedder) Model() string {
	return m.ModelName
}

// CallCount returns the number of times Embed was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Calls returns the texts passed to each Embed call.
func (m *MockEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.texts...)
}

// Reset clears recorded calls and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.EmbedFunc = nil
}

// GenerateDeterministicVector creates a unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func GenerateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	norm := float32(1 / math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] *= norm
	}
	return vector
}
