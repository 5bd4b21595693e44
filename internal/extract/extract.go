// Package extract converts uploaded document bytes into plain text
// suitable for chunking.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for input validation. These surface synchronously,
// before any chunking or network call happens.
var (
	ErrEmptyDocument     = errors.New("extract: document is empty")
	ErrBinaryContent     = errors.New("extract: document is not text")
	ErrUnsupportedFormat = errors.New("extract: unsupported format")
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}

// textExtensions are the formats the shipped extractor accepts. Files
// with no extension are treated as plain text.
var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	"":          true,
}

// Text is the shipped Extractor: UTF-8 plain text and Markdown.
type Text struct{}

// NewText creates the plain-text extractor.
func NewText() *Text {
	return &Text{}
}

// Supports reports whether the file name's extension is one this
// extractor accepts.
func (t *Text) Supports(name string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// Extract validates and normalizes the document. Empty or whitespace-only
// input, binary content, and unknown extensions are rejected.
func (t *Text) Extract(name string, data []byte) (string, error) {
	if !t.Supports(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyDocument
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "", ErrBinaryContent
	}

	// Normalize line endings so chunk separators behave consistently.
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return text, nil
}
