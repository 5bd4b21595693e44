package ingest

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreMatcher wraps a gitignore pattern matcher for folder ingestion.
type IgnoreMatcher struct {
	gi *gitignore.GitIgnore
}

// NewIgnoreMatcher loads exclusion patterns from .docsageignore (or, as a
// fallback, .gitignore) in the ingestion root. Without either file the
// matcher accepts everything.
func NewIgnoreMatcher(root string) *IgnoreMatcher {
	for _, name := range []string{".docsageignore", ".gitignore"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		gi, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			continue
		}
		return &IgnoreMatcher{gi: gi}
	}
	return &IgnoreMatcher{}
}

// Match returns true if the given relative path should be skipped.
func (m *IgnoreMatcher) Match(relPath string) bool {
	if m.gi == nil {
		return false
	}
	return m.gi.MatchesPath(relPath)
}

// hardIgnored contains directories always skipped regardless of patterns.
var hardIgnored = map[string]bool{
	".git":         true,
	".docsage":     true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"tmp":          true,
}

// HardIgnore returns true if the directory name is always excluded.
func HardIgnore(name string) bool {
	return hardIgnored[name]
}
