// Package local provides an in-process embedder based on feature hashing.
//
// Every lowercased word and word bigram is hashed into one of Dimensions
// buckets with a hash-derived sign, and the resulting vector is L2
// normalized. Texts sharing vocabulary land close together, which is enough
// for development, tests and air-gapped installs.
package local

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/poiesic/docflow/ai"
)

// Embedder implements ai.Embedder without any external service.
type Embedder struct {
	model  string
	dims   int
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a local embedder from config.
//
// Returns ai.Embedder interface so it can serve as an ai.Factory.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		model:  config.EmbeddingModel,
		dims:   config.Dimensions,
		logger: slog.Default().With("component", "local-embedder"),
	}, nil
}

// Model returns the configured model name.
func (e *Embedder) Model() string {
	return e.model
}

// Embed hashes each text into a normalized vector. Texts without any word
// characters are reported as failed.
func (e *Embedder) Embed(ctx context.Context, texts []string) (*ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	result := ai.NewResult(e.model, len(texts))
	for i, text := range texts {
		vector, ok := e.vectorize(text)
		if !ok {
			result.MarkFailed(i, ai.ErrEmptyInput)
			continue
		}
		result.Vectors[i] = vector
	}
	return result, nil
}

func (e *Embedder) vectorize(text string) ([]float32, bool) {
	words := tokenize(text)
	if len(words) == 0 {
		return nil, false
	}

	vector := make([]float32, e.dims)
	for i, word := range words {
		e.add(vector, word, 1)
		if i > 0 {
			e.add(vector, words[i-1]+" "+word, 0.5)
		}
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return nil, false
	}
	norm := float32(1 / math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] *= norm
	}
	return vector, true
}

func (e *Embedder) add(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(e.dims)
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
