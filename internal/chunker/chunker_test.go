package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode"
)

func TestChunk_SmallDocument(t *testing.T) {
	text := "A short document that fits in one parent."
	parents, children := Chunk("doc1", text, Config{})
	if len(parents) != 1 {
		t.Fatalf("expected 1 parent, got %d", len(parents))
	}
	if parents[0].Text != text {
		t.Errorf("parent text mismatch: got %q", parents[0].Text)
	}
	if parents[0].ID != "doc1:0" {
		t.Errorf("parent id: got %q, want %q", parents[0].ID, "doc1:0")
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if children[0].ParentID != "doc1:0" || children[0].GlobalIndex != 0 || children[0].ChildIndex != 0 {
		t.Errorf("child linkage: %+v", children[0])
	}
}

func TestChunk_ExactParentSize(t *testing.T) {
	text := strings.Repeat("a", 100)
	parents, _ := Chunk("doc1", text, Config{ParentSize: 100, ParentOverlap: 10, ChildSize: 40, ChildOverlap: 5})
	if len(parents) != 1 {
		t.Fatalf("text exactly at parent size should yield 1 parent, got %d", len(parents))
	}
}

func TestChunk_Coverage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog near the riverbank today.\n\n")
	}
	text := b.String()

	parents, _ := Chunk("doc1", text, Config{ParentSize: 200, ParentOverlap: 20, ChildSize: 80, ChildOverlap: 10})
	if len(parents) < 2 {
		t.Fatalf("expected multiple parents, got %d", len(parents))
	}

	// Every non-whitespace region of the input must appear in some parent.
	for _, sentence := range strings.Split(text, "\n\n") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		found := false
		for _, p := range parents {
			if strings.Contains(p.Text, sentence) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("sentence not covered by any parent: %q", sentence)
		}
	}
}

func TestChunk_ReconstructionPreservesCharacters(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Sentence number %d has several words in it. ", i)
	}
	text := b.String()

	// Zero overlap so concatenating parents reconstructs the document.
	parents, _ := Chunk("doc1", text, Config{ParentSize: 120, ParentOverlap: 0, ChildSize: 60, ChildOverlap: 0})
	if len(parents) < 2 {
		t.Fatalf("expected multiple parents, got %d", len(parents))
	}

	var joined strings.Builder
	for _, p := range parents {
		joined.WriteString(p.Text)
	}

	// Only whitespace may differ between input and reconstruction.
	if got, want := stripSpace(joined.String()), stripSpace(text); got != want {
		t.Fatalf("reconstruction lost characters:\n got  %q\n want %q", got, want)
	}
	if got, want := strings.Count(joined.String(), "."), strings.Count(text, "."); got != want {
		t.Errorf("sentence-final periods lost at chunk boundaries: got %d, want %d", got, want)
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestChunk_SizeBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("Some reasonably sized sentence that packs into chunks. ")
	}
	cfg := Config{ParentSize: 300, ParentOverlap: 40, ChildSize: 100, ChildOverlap: 15}
	parents, children := Chunk("doc1", b.String(), cfg)

	for _, p := range parents {
		if len(p.Text) > cfg.ParentSize+cfg.ParentOverlap {
			t.Errorf("parent %d exceeds size bound: %d > %d", p.Index, len(p.Text), cfg.ParentSize+cfg.ParentOverlap)
		}
	}
	for _, c := range children {
		if len(c.Text) > cfg.ChildSize+cfg.ChildOverlap {
			t.Errorf("child %d exceeds size bound: %d > %d", c.GlobalIndex, len(c.Text), cfg.ChildSize+cfg.ChildOverlap)
		}
	}
}

func TestChunk_Linkage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("Paragraph content that will be split across several parents.\n\n")
	}
	parents, children := Chunk("doc1", b.String(), Config{ParentSize: 250, ParentOverlap: 25, ChildSize: 90, ChildOverlap: 10})

	ids := make(map[string]bool, len(parents))
	for i, p := range parents {
		if p.Index != i {
			t.Errorf("parent index: got %d, want %d", p.Index, i)
		}
		ids[p.ID] = true
	}

	prevParent := ""
	localIndex := 0
	for i, c := range children {
		if c.GlobalIndex != i {
			t.Errorf("global index: got %d, want %d", c.GlobalIndex, i)
		}
		if !ids[c.ParentID] {
			t.Errorf("child %d references unknown parent %q", i, c.ParentID)
		}
		if c.ParentID != prevParent {
			prevParent = c.ParentID
			localIndex = 0
		}
		if c.ChildIndex != localIndex {
			t.Errorf("child %d local index: got %d, want %d", i, c.ChildIndex, localIndex)
		}
		localIndex++
	}
}

func TestChunk_Overlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Overlap test sentence number with enough words to matter. ")
	}
	parents, _ := Chunk("doc1", b.String(), Config{ParentSize: 200, ParentOverlap: 30, ChildSize: 80, ChildOverlap: 0})
	if len(parents) < 2 {
		t.Fatalf("expected multiple parents, got %d", len(parents))
	}
	// Each parent after the first starts with text from the tail of its predecessor.
	for i := 1; i < len(parents); i++ {
		prefix := parents[i].Text[:10]
		if !strings.Contains(parents[i-1].Text, prefix) {
			t.Errorf("parent %d does not begin with overlap from parent %d", i, i-1)
		}
	}
}

func TestChunk_NoSeparators(t *testing.T) {
	// A long run with no whitespace at all forces the fixed-width fallback.
	text := strings.Repeat("x", 1000)
	parents, _ := Chunk("doc1", text, Config{ParentSize: 300, ParentOverlap: 0, ChildSize: 100, ChildOverlap: 0})
	if len(parents) < 3 {
		t.Fatalf("expected fixed-width split into >=3 parents, got %d", len(parents))
	}
	total := 0
	for _, p := range parents {
		if len(p.Text) > 300 {
			t.Errorf("parent exceeds size with no overlap: %d", len(p.Text))
		}
		total += len(p.Text)
	}
	if total != 1000 {
		t.Errorf("fixed-width split lost characters: got %d, want 1000", total)
	}
}

func TestChunk_WhitespaceOnly(t *testing.T) {
	parents, children := Chunk("doc1", "   \n\n \t ", Config{})
	if len(parents) != 0 || len(children) != 0 {
		t.Errorf("whitespace-only input: got %d parents, %d children", len(parents), len(children))
	}
}

func TestChunk_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ParentSize != DefaultParentSize || cfg.ChildSize != DefaultChildSize {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
