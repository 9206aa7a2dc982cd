package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/docflow/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder implements ai.Embedder using an OpenAI-compatible embedding API.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	config     *ai.Config
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	clientCfg.BaseURL = config.EmbeddingHost

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      config.EmbeddingModel,
		dimensions: config.Dimensions,
		batchSize:  config.BatchSize,
		config:     config,
		logger:     slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface so it can serve as an ai.Factory.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Model returns the requested model identifier.
func (e *Embedder) Model() string {
	return e.model
}

// Embed sends texts in requests of at most BatchSize inputs. Blank texts are
// never sent and are reported as failed. Positions the service leaves out of
// its response are reported as failed too.
func (e *Embedder) Embed(ctx context.Context, texts []string) (*ai.Result, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	result := ai.NewResult(e.model, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			result.MarkFailed(i, ai.ErrEmptyInput)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		batch := pending[start:end]

		input := make([]string, len(batch))
		for j, idx := range batch {
			input[j] = texts[idx]
		}

		resp, err := e.request(ctx, input)
		if err != nil {
			e.logger.Error("failed to generate embeddings", "count", len(input), "err", err)
			return nil, err
		}
		result.Model = reportedModel(e.model, string(resp.Model))

		got := make([]bool, len(batch))
		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= len(batch) {
				continue
			}
			if len(data.Embedding) == 0 {
				continue
			}
			result.Vectors[batch[data.Index]] = data.Embedding
			got[data.Index] = true
		}
		for j, ok := range got {
			if !ok {
				result.MarkFailed(batch[j], fmt.Errorf("%w: no embedding returned for input %d", ai.ErrBackend, batch[j]))
			}
		}
	}
	return result, nil
}

func (e *Embedder) request(ctx context.Context, input []string) (openai.EmbeddingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return resp, classifyError(ctx, err)
	}
	return resp, nil
}

// reportedModel accepts tagged variants of the requested model, such as
// "embeddinggemma:latest" for "embeddinggemma".
func reportedModel(requested, got string) string {
	if got == "" || got == requested || strings.HasPrefix(got, requested+":") {
		return requested
	}
	return got
}

// classifyError maps client errors onto the ai error sentinels.
func classifyError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return statusError(reqErr.HTTPStatusCode, detail)
	}

	// The caller gave up; not the backend's fault.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: request timed out: %v", ai.ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ai.ErrTransient, err)
}

func statusError(code int, detail string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ai.ErrRateLimited, detail)
	case code == http.StatusRequestTimeout || code >= 500:
		return fmt.Errorf("%w: status %d: %s", ai.ErrTransient, code, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ai.ErrBackend, code, detail)
	}
}

// extractDetail extracts the "detail" field some compatible servers use for
// error bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
