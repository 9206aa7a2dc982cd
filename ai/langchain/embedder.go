// Package langchain implements ai.Embedder with langchaingo's OpenAI client,
// for deployments that already standardise on langchaingo.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
		openai.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.Dimensions > 0 {
		opts = append(opts, openai.WithEmbeddingDimensions(config.Dimensions))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		logger:   slog.Default().With("component", "langchain-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface so it can serve as an ai.Factory.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Model returns the configured model identifier. langchaingo does not expose
// the model the service reports, so the requested one is returned.
func (e *Embedder) Model() string {
	return e.model
}

// Embed generates vectors for texts. Blank texts are not sent.
func (e *Embedder) Embed(ctx context.Context, texts []string) (*ai.Result, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	result := ai.NewResult(e.model, len(texts))
	var input []string
	var positions []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			result.MarkFailed(i, ai.ErrEmptyInput)
			continue
		}
		input = append(input, text)
		positions = append(positions, i)
	}
	if len(input) == 0 {
		return result, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, input)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(input), "err", err)
		return nil, classifyError(err)
	}

	for j, pos := range positions {
		if j >= len(vectors) || len(vectors[j]) == 0 {
			result.MarkFailed(pos, fmt.Errorf("%w: no embedding returned", ai.ErrBackend))
			continue
		}
		result.Vectors[pos] = vectors[j]
	}
	return result, nil
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// classifyError maps langchaingo errors onto the ai sentinels. The client
// reports HTTP failures only as text, so the status code is parsed from the
// message.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ai.ErrTransient, err)
	}

	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ai.ErrRateLimited, err)
		case code == http.StatusRequestTimeout || code >= 500:
			return fmt.Errorf("%w: %v", ai.ErrTransient, err)
		default:
			return fmt.Errorf("%w: %v", ai.ErrBackend, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("%w: %v", ai.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", ai.ErrTransient, err)
}
