// Package ingest runs the document write path: extract text, chunk it
// at two granularities, embed the children, and index them under the
// session's namespace.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/session"
	"github.com/docsage/docsage/internal/vecindex"
)

// embedBatchSize is how many child texts go to the embedder per call.
const embedBatchSize = 32

// ErrNoSession rejects ingestion without a namespace to write into.
var ErrNoSession = errors.New("ingest: session identifier is required")

// Receipt reports what one document ingestion produced.
type Receipt struct {
	DocumentID  string
	Name        string
	ParentCount int
	ChildCount  int
	SizeBytes   int64
}

// Ingestor wires the write path's collaborators.
type Ingestor struct {
	extractor extract.Extractor
	embedder  adapter.Embedder
	index     vecindex.Index
	docs      *session.Store
	cfg       chunker.Config
}

// New creates an Ingestor. docs may be nil when the caller keeps its own
// document inventory (the MCP server does).
func New(extractor extract.Extractor, embedder adapter.Embedder, index vecindex.Index, docs *session.Store, cfg chunker.Config) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		docs:      docs,
		cfg:       cfg,
	}
}

// IngestBytes ingests one document from raw bytes. Validation failures
// (empty session, empty or binary content, unsupported format) surface
// before any network call.
func (in *Ingestor) IngestBytes(ctx context.Context, sessionID, name string, data []byte) (*Receipt, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	text, err := in.extractor.Extract(name, data)
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	parents, children := chunker.Chunk(docID, text, in.cfg)

	parentText := make(map[string]string, len(parents))
	for _, p := range parents {
		parentText[p.ID] = p.Text
	}

	items := make([]vecindex.Item, len(children))
	texts := make([]string, len(children))
	for i, c := range children {
		texts[i] = c.Text
		items[i] = vecindex.Item{
			Passage: vecindex.Passage{
				ID:         fmt.Sprintf("%s#%d", docID, c.GlobalIndex),
				Namespace:  sessionID,
				DocumentID: docID,
				ParentID:   c.ParentID,
				ChildIndex: c.ChildIndex,
				ChunkIndex: c.GlobalIndex,
				ChildText:  c.Text,
				ParentText: parentText[c.ParentID],
				SourceName: name,
			},
		}
	}

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := in.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("ingest: embed batch: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("ingest: embed batch: got %d vectors for %d texts", len(vecs), end-start)
		}
		for i, v := range vecs {
			items[start+i].Embedding = v
		}
	}

	receipt := &Receipt{
		DocumentID:  docID,
		Name:        name,
		ParentCount: len(parents),
		ChildCount:  len(children),
		SizeBytes:   int64(len(data)),
	}

	// The document record must exist before passages reference it.
	if in.docs != nil {
		if err := in.docs.UpsertDocument(session.Document{
			ID:          docID,
			Session:     sessionID,
			Name:        name,
			SizeBytes:   receipt.SizeBytes,
			ParentCount: receipt.ParentCount,
			ChildCount:  receipt.ChildCount,
		}); err != nil {
			return nil, err
		}
	}

	if err := in.index.Upsert(sessionID, items); err != nil {
		return nil, err
	}

	return receipt, nil
}

// Skippable reports whether an ingestion error means the file simply
// isn't ingestible (empty, binary, or an unsupported format) rather
// than a real failure.
func Skippable(err error) bool {
	return errors.Is(err, extract.ErrUnsupportedFormat) ||
		errors.Is(err, extract.ErrEmptyDocument) ||
		errors.Is(err, extract.ErrBinaryContent)
}

// IngestFile ingests a single file from disk, using its base name as
// the source name.
func (in *Ingestor) IngestFile(ctx context.Context, sessionID, path string) (*Receipt, error) {
	return in.ingestPath(ctx, sessionID, path, filepath.Base(path))
}

func (in *Ingestor) ingestPath(ctx context.Context, sessionID, path, name string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return in.IngestBytes(ctx, sessionID, name, data)
}

// IngestDir walks root and ingests every supported file, honoring
// .docsageignore/.gitignore patterns. Per-file failures are reported via
// onFile and do not stop the walk; unsupported and empty files are
// skipped silently.
func (in *Ingestor) IngestDir(ctx context.Context, sessionID, root string, onFile func(rel string, r *Receipt, err error)) ([]Receipt, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	ignore := NewIgnoreMatcher(root)
	var receipts []Receipt

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries.
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if HardIgnore(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Match(rel) {
			return nil
		}

		// Directory ingests use the relative path as the source name so
		// sibling files with the same base name stay distinguishable.
		r, err := in.ingestPath(ctx, sessionID, path, rel)
		if err != nil {
			if Skippable(err) {
				return nil
			}
			if onFile != nil {
				onFile(rel, nil, err)
			}
			return nil
		}
		receipts = append(receipts, *r)
		if onFile != nil {
			onFile(rel, r, nil)
		}
		return nil
	})
	if err != nil {
		return receipts, fmt.Errorf("ingest: walk %s: %w", root, err)
	}
	return receipts, nil
}
