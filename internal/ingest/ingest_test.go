package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/vecindex"
)

type fakeEmbedder struct {
	fail       bool
	batchSizes []int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("fake: embed down")
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeIndex struct {
	namespace string
	items     []vecindex.Item
	upserts   int
}

func (f *fakeIndex) Upsert(namespace string, items []vecindex.Item) error {
	f.upserts++
	f.namespace = namespace
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeIndex) Query(string, []float32, int, []string) ([]vecindex.Match, error) {
	return nil, nil
}

func (f *fakeIndex) DeleteNamespace(string) error { return nil }

func newTestIngestor(emb *fakeEmbedder, idx *fakeIndex) *Ingestor {
	cfg := chunker.Config{ParentSize: 200, ParentOverlap: 20, ChildSize: 80, ChildOverlap: 10}
	return New(extract.NewText(), emb, idx, nil, cfg)
}

func docText() []byte {
	out := ""
	for i := 0; i < 30; i++ {
		out += fmt.Sprintf("Paragraph %d with enough words to produce several chunks of text.\n\n", i)
	}
	return []byte(out)
}

func TestIngestBytes(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	in := newTestIngestor(emb, idx)

	r, err := in.IngestBytes(context.Background(), "s1", "doc.txt", docText())
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}
	if r.DocumentID == "" || r.Name != "doc.txt" {
		t.Errorf("receipt identity: %+v", r)
	}
	if r.ParentCount == 0 || r.ChildCount < r.ParentCount {
		t.Errorf("receipt counts: %+v", r)
	}
	if r.SizeBytes != int64(len(docText())) {
		t.Errorf("size: got %d", r.SizeBytes)
	}

	if idx.namespace != "s1" {
		t.Errorf("namespace: %q", idx.namespace)
	}
	if len(idx.items) != r.ChildCount {
		t.Fatalf("indexed %d items for %d children", len(idx.items), r.ChildCount)
	}
	for i, item := range idx.items {
		p := item.Passage
		if p.ID != fmt.Sprintf("%s#%d", r.DocumentID, i) {
			t.Errorf("item %d id: %q", i, p.ID)
		}
		if p.ParentText == "" || p.ChildText == "" {
			t.Errorf("item %d missing text: %+v", i, p)
		}
		if p.SourceName != "doc.txt" || p.DocumentID != r.DocumentID {
			t.Errorf("item %d metadata: %+v", i, p)
		}
		if len(item.Embedding) == 0 {
			t.Errorf("item %d has no embedding", i)
		}
	}
}

func TestIngestBytes_BatchesEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	in := newTestIngestor(emb, idx)

	// Enough text for well over 32 children.
	var big []byte
	for i := 0; i < 8; i++ {
		big = append(big, docText()...)
	}
	r, err := in.IngestBytes(context.Background(), "s1", "big.txt", big)
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}
	if r.ChildCount <= embedBatchSize {
		t.Fatalf("test document too small: %d children", r.ChildCount)
	}
	for i, n := range emb.batchSizes {
		if n > embedBatchSize {
			t.Errorf("batch %d exceeds limit: %d", i, n)
		}
	}
	total := 0
	for _, n := range emb.batchSizes {
		total += n
	}
	if total != r.ChildCount {
		t.Errorf("embedded %d texts for %d children", total, r.ChildCount)
	}
}

func TestIngestBytes_Validation(t *testing.T) {
	in := newTestIngestor(&fakeEmbedder{}, &fakeIndex{})

	if _, err := in.IngestBytes(context.Background(), "", "doc.txt", docText()); !errors.Is(err, ErrNoSession) {
		t.Errorf("empty session: %v", err)
	}
	if _, err := in.IngestBytes(context.Background(), "s1", "doc.txt", nil); !errors.Is(err, extract.ErrEmptyDocument) {
		t.Errorf("empty document: %v", err)
	}
	if _, err := in.IngestBytes(context.Background(), "s1", "doc.pdf", []byte("x")); !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("unsupported format: %v", err)
	}
}

func TestIngestBytes_EmbedFailurePropagates(t *testing.T) {
	in := newTestIngestor(&fakeEmbedder{fail: true}, &fakeIndex{})
	if _, err := in.IngestBytes(context.Background(), "s1", "doc.txt", docText()); err == nil {
		t.Error("expected embed failure to propagate")
	}
}

func TestIngestDir(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "a.txt"), docText(), 0o644)
	os.WriteFile(filepath.Join(root, "b.md"), docText(), 0o644)
	os.WriteFile(filepath.Join(root, "image.png"), []byte{0x89, 0x50, 0x4e, 0x47}, 0o644)
	os.WriteFile(filepath.Join(root, "skipme.txt"), docText(), 0o644)
	os.WriteFile(filepath.Join(root, ".docsageignore"), []byte("skipme.txt\n"), 0o644)
	os.MkdirAll(filepath.Join(root, "node_modules"), 0o755)
	os.WriteFile(filepath.Join(root, "node_modules", "dep.txt"), docText(), 0o644)
	os.MkdirAll(filepath.Join(root, "sub"), 0o755)
	os.WriteFile(filepath.Join(root, "sub", "c.txt"), docText(), 0o644)

	in := newTestIngestor(&fakeEmbedder{}, &fakeIndex{})

	var seen []string
	receipts, err := in.IngestDir(context.Background(), "s1", root, func(rel string, r *Receipt, err error) {
		if err != nil {
			t.Errorf("file %s: %v", rel, err)
			return
		}
		seen = append(seen, rel)
	})
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}

	got := make(map[string]bool)
	for _, r := range receipts {
		got[r.Name] = true
	}
	for _, want := range []string{"a.txt", "b.md", filepath.Join("sub", "c.txt")} {
		if !got[want] {
			t.Errorf("%s not ingested: %v", want, got)
		}
	}
	for _, banned := range []string{"skipme.txt", "image.png", filepath.Join("node_modules", "dep.txt")} {
		if got[banned] {
			t.Errorf("%s should have been skipped", banned)
		}
	}
	if len(seen) != len(receipts) {
		t.Errorf("callback count %d != receipts %d", len(seen), len(receipts))
	}
}
