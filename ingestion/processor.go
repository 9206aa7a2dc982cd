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


package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/docflow/blob"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/metrics"
	"github.com/poiesic/docflow/worker"
)

// handler processes one kind of ingestion event. A nil error means the
// event was completed in the same transaction as its writes.
type handler interface {
	handle(ctx context.Context, event *core.IngestionEvent) error
}

// createdHandler parses an uploaded item into a document and its chunks.
type createdHandler struct {
	parser *Parser
}

func (h *createdHandler) handle(ctx context.Context, event *core.IngestionEvent) error {
	p := h.parser
	ref := event.SourceRef()

	data, err := h.fetch(ctx, ref)
	if err != nil {
		metrics.ProcessingErrorsTotal.WithLabelValues("fetch").Inc()
		return fmt.Errorf("fetch %q: %w", ref, err)
	}

	text, err := p.extractor.Extract(ctx, ref, data)
	if err != nil {
		metrics.ProcessingErrorsTotal.WithLabelValues("extract").Inc()
		return fmt.Errorf("extract %q: %w", ref, err)
	}

	pieces, err := p.splitter.SplitText(text)
	if err != nil {
		metrics.ProcessingErrorsTotal.WithLabelValues("split").Inc()
		return fmt.Errorf("split %q: %w", ref, err)
	}
	if len(pieces) == 0 {
		return fmt.Errorf("split %q: %w", ref, ErrEmptyDocument)
	}

	doc := &core.Document{
		ID:     core.DocumentIDFor(event.ItemID, event.ID),
		Source: ref,
	}
	chunks := make([]*core.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &core.Chunk{Text: piece}
	}

	created, err := p.documents.CommitParse(ctx, event, doc, chunks)
	if err != nil {
		metrics.ProcessingErrorsTotal.WithLabelValues("commit").Inc()
		return fmt.Errorf("commit document: %w", err)
	}
	if created {
		metrics.ChunksCreatedTotal.Add(float64(len(chunks)))
		p.logger.Info("document parsed", "item", event.ItemID, "document", doc.ID, "chunks", len(chunks), "superseded_on_arrival", doc.Deleted)
	} else {
		p.logger.Info("document already parsed", "item", event.ItemID, "document", doc.ID)
	}
	return nil
}

// fetch reads ref with a per-attempt timeout, retrying transient failures.
func (h *createdHandler) fetch(ctx context.Context, ref string) ([]byte, error) {
	p := h.parser
	var data []byte
	err := worker.RetryIf(ctx, func() error {
		fetchCtx := ctx
		if p.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
			defer cancel()
		}

		var err error
		data, err = p.blobs.Fetch(fetchCtx, ref)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: timed out after %s", blob.ErrIO, p.fetchTimeout)
		}
		return err
	}, p.fetchRetries, p.retryDelay, isTransient)
	return data, err
}

// deletedHandler soft-deletes the item's active document.
type deletedHandler struct {
	parser *Parser
}

func (h *deletedHandler) handle(ctx context.Context, event *core.IngestionEvent) error {
	doc, err := h.parser.documents.CommitDelete(ctx, event)
	if err != nil {
		metrics.ProcessingErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete document: %w", err)
	}
	if doc == nil {
		h.parser.logger.Info("no active document to delete", "item", event.ItemID)
		return nil
	}
	metrics.DocumentsDeletedTotal.Inc()
	h.parser.logger.Info("document deleted", "item", event.ItemID, "document", doc.ID)
	return nil
}
