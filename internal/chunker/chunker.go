// Package chunker splits raw document text into parent and child spans
// for dual-granularity indexing: children are the unit of embedding and
// search, parents are the unit of context handed to the model.
package chunker

import (
	"fmt"
	"strings"
)

// Default span sizes in characters.
const (
	DefaultParentSize    = 2000
	DefaultParentOverlap = 200
	DefaultChildSize     = 400
	DefaultChildOverlap  = 50
)

// separators is tried coarse to fine. The empty string means a hard
// fixed-width character split and guarantees termination on any input.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// ParentSpan is a large contiguous slice of a document.
type ParentSpan struct {
	ID    string
	Text  string
	Index int
}

// ChildSpan is a small slice of exactly one parent.
type ChildSpan struct {
	Text        string
	GlobalIndex int
	ParentID    string
	ChildIndex  int
}

// Config holds the chunking sizes. Zero values fall back to defaults.
type Config struct {
	ParentSize    int
	ParentOverlap int
	ChildSize     int
	ChildOverlap  int
}

func (c Config) withDefaults() Config {
	if c.ParentSize <= 0 {
		c.ParentSize = DefaultParentSize
	}
	if c.ParentOverlap < 0 {
		c.ParentOverlap = DefaultParentOverlap
	}
	if c.ChildSize <= 0 {
		c.ChildSize = DefaultChildSize
	}
	if c.ChildOverlap < 0 {
		c.ChildOverlap = DefaultChildOverlap
	}
	return c
}

// Chunk runs the parent pass over the whole document, then the child pass
// over each parent's text. Parent IDs are derived from docID and the
// parent's position; every child references the parent it was cut from.
func Chunk(docID, text string, cfg Config) ([]ParentSpan, []ChildSpan) {
	cfg = cfg.withDefaults()

	parentTexts := split(text, cfg.ParentSize, cfg.ParentOverlap)

	parents := make([]ParentSpan, 0, len(parentTexts))
	var children []ChildSpan
	globalIndex := 0

	for i, pt := range parentTexts {
		p := ParentSpan{
			ID:    fmt.Sprintf("%s:%d", docID, i),
			Text:  pt,
			Index: i,
		}
		parents = append(parents, p)

		for j, ct := range split(pt, cfg.ChildSize, cfg.ChildOverlap) {
			children = append(children, ChildSpan{
				Text:        ct,
				GlobalIndex: globalIndex,
				ParentID:    p.ID,
				ChildIndex:  j,
			})
			globalIndex++
		}
	}

	return parents, children
}

// split produces chunks of at most targetSize characters (plus the overlap
// prefix), recursing through the separator list and falling back to hard
// character slicing when no separator remains.
func split(text string, targetSize, overlap int) []string {
	raw := splitRecursive(text, targetSize, separators)
	return injectOverlap(raw, overlap)
}

func splitRecursive(text string, targetSize int, seps []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= targetSize {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, targetSize)
	}

	sep := seps[0]
	if sep == "" {
		return hardSplit(text, targetSize)
	}

	// Each piece keeps its trailing separator, so packing pieces into
	// chunks loses no characters at boundaries: ". " would otherwise drop
	// sentence-final periods.
	pieces := strings.SplitAfter(text, sep)

	var out []string
	var buf strings.Builder

	flush := func() {
		if s := buf.String(); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
		buf.Reset()
	}

	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}

		// A piece that alone exceeds the target recurses into the
		// remaining finer separators.
		if len(piece) > targetSize {
			flush()
			out = append(out, splitRecursive(piece, targetSize, seps[1:])...)
			continue
		}

		if buf.Len()+len(piece) > targetSize {
			flush()
		}
		buf.WriteString(piece)
	}
	flush()

	return out
}

// hardSplit slices text into fixed-width pieces. Last resort for input
// with no usable separators (e.g. a document with no whitespace).
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if strings.TrimSpace(text) != "" {
		out = append(out, text)
	}
	return out
}

// injectOverlap prefixes every chunk after the first with the trailing
// overlap characters of the previous raw chunk, so adjacent chunks share
// boundary context. Overlap is taken from the unprefixed chunk to avoid
// compounding.
func injectOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(prev) > overlap {
			tail = prev[len(prev)-overlap:]
		}
		out[i] = tail + chunks[i]
	}
	return out
}
