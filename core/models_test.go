package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestDocumentIDFor(t *testing.T) {
	if DocumentIDFor("X", 1) != DocumentIDFor("X", 1) {
		t.Errorf("DocumentIDFor() is not deterministic")
	}
	if DocumentIDFor("X", 1) == DocumentIDFor("X", 2) {
		t.Errorf("DocumentIDFor() ignores the event id")
	}
	if DocumentIDFor("X", 1) == DocumentIDFor("Y", 1) {
		t.Errorf("DocumentIDFor() ignores the item id")
	}
	// "a" + event 11 must not collide with "a1" + event 1
	if DocumentIDFor("a", 11) == DocumentIDFor("a1", 1) {
		t.Errorf("DocumentIDFor() is ambiguous across the separator")
	}
}

func TestChunkIDFor(t *testing.T) {
	doc := DocumentIDFor("X", 7)
	seen := make(map[ID]bool)
	for i := 0; i < 50; i++ {
		id := ChunkIDFor(doc, i)
		if seen[id] {
			t.Fatalf("ChunkIDFor() collision at ordinal %d", i)
		}
		seen[id] = true
		if id != ChunkIDFor(doc, i) {
			t.Fatalf("ChunkIDFor() is not deterministic")
		}
	}
}

func TestIngestionEvent_SourceRef(t *testing.T) {
	tests := []struct {
		name  string
		event IngestionEvent
		want  string
	}{
		{
			name:  "defaults to item id",
			event: IngestionEvent{ItemID: "reports/q3.pdf"},
			want:  "reports/q3.pdf",
		},
		{
			name:  "explicit source wins",
			event: IngestionEvent{ItemID: "doc-42", Source: "uploads/7f/doc-42.txt"},
			want:  "uploads/7f/doc-42.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.SourceRef(); got != tt.want {
				t.Errorf("SourceRef() = %q, want %q", got, tt.want)
			}
		})
	}
}
