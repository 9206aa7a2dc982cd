package ingestion

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the default window length in words.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the default number of words shared by adjacent windows.
	DefaultChunkOverlap = 80

	SplitterWindow    = "window"
	SplitterRecursive = "recursive"
)

// WindowSplitter cuts text into fixed-size word windows. Adjacent windows
// share Overlap words; the last window may be shorter.
type WindowSplitter struct {
	Size    int
	Overlap int
}

var _ textsplitter.TextSplitter = WindowSplitter{}

// NewWindowSplitter returns a WindowSplitter with sane bounds applied.
// An overlap that would stop the window from advancing is reduced to size/4.
func NewWindowSplitter(size, overlap int) WindowSplitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return WindowSplitter{Size: size, Overlap: overlap}
}

// SplitText splits text on whitespace and regroups the words into windows.
// Whitespace-only text yields no chunks.
func (s WindowSplitter) SplitText(text string) ([]string, error) {
	s = NewWindowSplitter(s.Size, s.Overlap)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := s.Size - s.Overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := min(start+s.Size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// NewSplitter builds the named splitting strategy. The recursive strategy
// measures size and overlap in characters rather than words.
func NewSplitter(strategy string, size, overlap int) (textsplitter.TextSplitter, error) {
	switch strategy {
	case "", SplitterWindow:
		return NewWindowSplitter(size, overlap), nil
	case SplitterRecursive:
		w := NewWindowSplitter(size, overlap)
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(w.Size),
			textsplitter.WithChunkOverlap(w.Overlap),
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitter, strategy)
	}
}
