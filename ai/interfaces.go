package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// Embed generates one vector per input text, in input order.
	// A whole-batch failure is returned as an error. Texts the backend could
	// not embed individually are reported in Result.Failed and have a nil
	// entry in Result.Vectors.
	Embed(ctx context.Context, texts []string) (*Result, error)

	// Model returns the model identifier this embedder produces vectors for.
	Model() string
}

// Result is the outcome of one Embed call.
type Result struct {
	// Vectors holds one entry per input text. Entries listed in Failed are nil.
	Vectors [][]float32

	// Model is the model identifier reported by the backend.
	Model string

	// Failed maps input positions to the reason they were not embedded.
	Failed map[int]error
}

// Err returns the per-text failure for position i, if any.
func (r *Result) Err(i int) error {
	if r.Failed == nil {
		return nil
	}
	return r.Failed[i]
}

// NewResult creates a Result with room for n vectors.
func NewResult(model string, n int) *Result {
	return &Result{
		Vectors: make([][]float32, n),
		Model:   model,
	}
}

// MarkFailed records that the text at position i was not embedded.
func (r *Result) MarkFailed(i int, err error) {
	if r.Failed == nil {
		r.Failed = make(map[int]error)
	}
	r.Failed[i] = err
	r.Vectors[i] = nil
}

// AIProvider hands out embedders for a model. The enrichment workers ask for
// the target model on every cycle, so a provider must be cheap to call
// repeatedly.
type AIProvider interface {
	// Embedder returns the embedder producing dims-sized vectors for model.
	// An empty model or zero dims selects the configured default.
	Embedder(model string, dims int) (Embedder, error)

	// Close releases resources held by the provider and its embedders.
	Close() error
}
