package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// Extractor turns the raw bytes of an item into plain text.
type Extractor interface {
	Extract(ctx context.Context, ref string, data []byte) (string, error)
}

type format string

const (
	formatText format = "text"
	formatHTML format = "html"
	formatCSV  format = "csv"
	formatPDF  format = "pdf"
	formatJSON format = "json"
	formatXML  format = "xml"
)

var formatsByExtension = map[string]format{
	"":          formatText,
	".txt":      formatText,
	".text":     formatText,
	".md":       formatText,
	".markdown": formatText,
	".log":      formatText,
	".html":     formatHTML,
	".htm":      formatHTML,
	".csv":      formatCSV,
	".pdf":      formatPDF,
	".json":     formatJSON,
	".xml":      formatXML,
}

// LoaderExtractor picks a langchaingo document loader by the reference's
// file extension. Multi-page and multi-row output is joined with blank lines.
// JSON and XML have no loader and are flattened into one line per value.
type LoaderExtractor struct{}

var _ Extractor = LoaderExtractor{}

// NewExtractor returns the default extractor.
func NewExtractor() Extractor {
	return LoaderExtractor{}
}

// SupportedExtensions lists the extensions LoaderExtractor accepts.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatsByExtension))
	for ext := range formatsByExtension {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

func formatOf(ref string) (format, error) {
	ext := strings.ToLower(path.Ext(ref))
	f, ok := formatsByExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Extract returns the text content of data.
func (LoaderExtractor) Extract(ctx context.Context, ref string, data []byte) (string, error) {
	f, err := formatOf(ref)
	if err != nil {
		return "", err
	}

	if f != formatPDF && !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}

	switch f {
	case formatJSON:
		return nonEmpty(flattenJSON(data))
	case formatXML:
		return nonEmpty(flattenXML(data))
	}

	var loader documentloaders.Loader
	switch f {
	case formatText:
		loader = documentloaders.NewText(bytes.NewReader(data))
	case formatHTML:
		loader = documentloaders.NewHTML(bytes.NewReader(data))
	case formatCSV:
		loader = documentloaders.NewCSV(bytes.NewReader(data))
	case formatPDF:
		loader = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	}

	docs, err := load(ctx, loader)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedContent, f, err)
	}

	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		if content := strings.TrimSpace(doc.PageContent); content != "" {
			pages = append(pages, content)
		}
	}
	if len(pages) == 0 {
		return "", ErrEmptyDocument
	}
	return strings.Join(pages, "\n\n"), nil
}

func nonEmpty(text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// load runs the loader, turning parser panics on corrupt input into errors.
func load(ctx context.Context, loader documentloaders.Loader) (docs []schema.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return loader.Load(ctx)
}
